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

// DefaultMaxLength is the capacity used when New is given a
// non-positive length.
const DefaultMaxLength = 128

// Separator is the only byte that delimits words.
const Separator = ' '

// Buffer is a fixed-capacity, zero-padded command buffer.
//
// The storage is allocated once by New.  After that, no operation
// allocates.  One byte of the capacity is reserved for the
// terminating zero, so a Buffer with MaxLength n holds at most n-1
// bytes of content.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
	n    int
}

// New makes an empty Buffer with the given capacity (including the
// terminator).
func New(maxLength int) *Buffer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Buffer{
		data: make([]byte, maxLength),
	}
}

// Cap returns the capacity, terminator included.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of content bytes.
func (b *Buffer) Len() int {
	return b.n
}

// Available reports how many more content bytes fit.
func (b *Buffer) Available() int {
	return len(b.data) - 1 - b.n
}

// PushByte appends c if there's room.  When it returns false, the
// Buffer is unchanged.
func (b *Buffer) PushByte(c byte) bool {
	if len(b.data) <= b.n+1 {
		return false
	}
	b.data[b.n] = c
	b.n++
	b.data[b.n] = 0
	return true
}

// Push appends all of p or nothing.
func (b *Buffer) Push(p []byte) bool {
	if b.Available() < len(p) {
		return false
	}
	b.n += copy(b.data[b.n:], p)
	b.data[b.n] = 0
	return true
}

// PushString is Push for a string.
func (b *Buffer) PushString(s string) bool {
	if b.Available() < len(s) {
		return false
	}
	b.n += copy(b.data[b.n:], s)
	b.data[b.n] = 0
	return true
}

// Clear empties the Buffer and zeroes all of its storage.
func (b *Buffer) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.n = 0
}

// Raw returns the entire storage, which is zero beyond Len().
//
// The caller must not modify the returned slice.
func (b *Buffer) Raw() []byte {
	return b.data
}

// Bytes returns the content.
//
// The caller must not modify the returned slice, which is only valid
// until the next mutation.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// String returns a copy of the content.
func (b *Buffer) String() string {
	return string(b.data[:b.n])
}

// span finds the bounds of the i-th word.
func (b *Buffer) span(i int) (start, end int, ok bool) {
	if i < 0 {
		return 0, 0, false
	}
	p := 0
	for {
		for p < b.n && b.data[p] == Separator {
			p++
		}
		if p == b.n {
			return 0, 0, false
		}
		start = p
		for p < b.n && b.data[p] != Separator {
			p++
		}
		if i == 0 {
			return start, p, true
		}
		i--
	}
}

// WordAt returns the i-th (zero-based) space-delimited word, or nil
// if there are not that many words.
//
// The returned slice aliases the Buffer's storage.
func (b *Buffer) WordAt(i int) []byte {
	start, end, ok := b.span(i)
	if !ok {
		return nil
	}
	return b.data[start:end:end]
}

// Command returns the first word (or nil).
func (b *Buffer) Command() []byte {
	return b.WordAt(0)
}

// RestAt returns the content starting at the i-th word and running to
// the end of the content.  Returns nil if there's no i-th word.
func (b *Buffer) RestAt(i int) []byte {
	start, _, ok := b.span(i)
	if !ok {
		return nil
	}
	return b.data[start:b.n:b.n]
}

// NumWords counts the words.
func (b *Buffer) NumWords() int {
	n := 0
	in := false
	for _, c := range b.data[:b.n] {
		if c == Separator {
			in = false
		} else if !in {
			in = true
			n++
		}
	}
	return n
}

// IntAt parses the i-th word as an integer.
//
// The whole word must match -?[0-9]+ and must fit in an int.
func (b *Buffer) IntAt(i int) (int, bool) {
	return ParseInt(b.WordAt(i))
}

// FloatAt parses the i-th word as a float.
//
// The whole word must match -?[0-9]+\.[0-9]+.  Bare integers are not
// floats.
func (b *Buffer) FloatAt(i int) (float64, bool) {
	return ParseFloat(b.WordAt(i))
}
