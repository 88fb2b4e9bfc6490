/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package buffer

import (
	"math"
	"strconv"
)

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// digits returns the length of the run of digits at the start of w.
func digits(w []byte) int {
	n := 0
	for n < len(w) && isDigit(w[n]) {
		n++
	}
	return n
}

// ParseInt parses an entire word that matches -?[0-9]+.
//
// Anything else, including a value that doesn't fit in an int, fails.
func ParseInt(w []byte) (int, bool) {
	neg := false
	if 0 < len(w) && w[0] == '-' {
		neg = true
		w = w[1:]
	}
	if len(w) == 0 || digits(w) != len(w) {
		return 0, false
	}

	// Accumulate negatively so that math.MinInt is reachable.
	acc := 0
	for _, c := range w {
		d := int(c - '0')
		if acc < (math.MinInt+d)/10 {
			return 0, false
		}
		acc = acc*10 - d
	}
	if !neg {
		if acc == math.MinInt {
			return 0, false
		}
		acc = -acc
	}
	return acc, true
}

// IsFloat reports whether the entire word matches -?[0-9]+\.[0-9]+.
func IsFloat(w []byte) bool {
	if 0 < len(w) && w[0] == '-' {
		w = w[1:]
	}
	n := digits(w)
	if n == 0 || n == len(w) || w[n] != '.' {
		return false
	}
	frac := w[n+1:]
	m := digits(frac)
	return 0 < m && m == len(frac)
}

// ParseFloat parses an entire word that matches -?[0-9]+\.[0-9]+.
func ParseFloat(w []byte) (float64, bool) {
	if !IsFloat(w) {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(w), 64)
	if err != nil {
		// Only a range error can get here.
		return 0, false
	}
	return f, true
}
