/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package registry

import "bytes"

// inboundBuffer assembles newline-delimited commands out of a stream of
// partial reads, a fixed-size append/extract
// pair. It is not safe for concurrent use; callers serialize access via
// the owning Connection's mutex.
type inboundBuffer struct {
	data []byte
	cap  int
}

func newInboundBuffer(capacity int) inboundBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return inboundBuffer{data: make([]byte, 0, capacity), cap: capacity}
}

// Append adds newly read bytes to the buffer. If the result would
// exceed the buffer's capacity, the entire buffer is discarded (the
// caller is expected to log this as a protocol violation) and ok is
// false.
func (b *inboundBuffer) Append(p []byte) (ok bool) {
	if len(b.data)+len(p) > b.cap {
		b.data = b.data[:0]
		return false
	}
	b.data = append(b.data, p...)
	return true
}

// ExtractLine removes and returns the first complete '\n'-terminated
// line from the buffer (trailing '\r' stripped), shifting any
// remainder to the front. ok is false if no complete line is present
// yet.
func (b *inboundBuffer) ExtractLine() (line string, ok bool) {
	idx := bytes.IndexByte(b.data, '\n')
	if idx < 0 {
		return "", false
	}

	raw := b.data[:idx]
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	line = string(raw)

	remainder := make([]byte, len(b.data)-idx-1)
	copy(remainder, b.data[idx+1:])
	b.data = b.data[:0]
	b.data = append(b.data, remainder...)

	return line, true
}

// Len reports the number of buffered, not-yet-extracted bytes.
func (b *inboundBuffer) Len() int { return len(b.data) }
