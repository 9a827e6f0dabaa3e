// File: buffer/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Append-only growable byte buffer used for response body accumulation.
// Pre-reserves a generous initial capacity so typical responses never
// reallocate; growth beyond that is geometric via the runtime allocator.

package buffer

const initialReserve = 32 * 1024

// Buffer is an append-only byte accumulator. Not safe for concurrent use;
// the bridge mutates it only on the reactor thread.
type Buffer struct {
	data []byte
}

// New returns an empty buffer with the default initial reservation.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, initialReserve)}
}

// Reserve grows capacity to at least n bytes without changing contents.
func (b *Buffer) Reserve(n int) {
	if cap(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), n)
	copy(grown, b.data)
	b.data = grown
}

// Append adds p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// AppendByte adds a single byte.
func (b *Buffer) AppendByte(c byte) {
	b.data = append(b.data, c)
}

// PopBack drops the last byte. No-op on an empty buffer.
func (b *Buffer) PopBack() {
	if n := len(b.data); n > 0 {
		b.data = b.data[:n-1]
	}
}

// Bytes returns the accumulated contents. The slice aliases the buffer's
// storage and is valid until the next mutation.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len reports the number of accumulated bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// String returns the contents as a string.
func (b *Buffer) String() string {
	return string(b.data)
}

// Reset empties the buffer, retaining capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Write implements io.Writer so the buffer can serve as a body sink.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
