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

// Package buffer provides a bounded command buffer with lazy,
// allocation-free tokenizing.
//
// Words are maximal runs of bytes other than ' '.  They are found by
// scanning from the start of the buffer each time they are
// requested.  Integers must match -?[0-9]+ and floats must match
// -?[0-9]+\.[0-9]+, in both cases for the entire word.  A word that
// doesn't match is simply not a number; nothing else is affected.
package buffer
