package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that stores early
// Printf output. It must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer models a fixed-size ring buffer used for capturing the output
// of Printf before an output sink is registered. When the buffer fills up,
// the oldest data is overwritten.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
	used           int
}

// Write writes len(p) bytes from p to the ring buffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.used < ringBufferSize {
			rb.used++
		} else {
			rb.rIndex = rb.wIndex
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns the number of bytes read
// (0 <= n <= len(p)) and io.EOF when the buffer has been fully drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.used == 0 {
		return 0, io.EOF
	}

	var n int
	for ; n < len(p) && rb.used > 0; n++ {
		p[n] = rb.buffer[rb.rIndex]
		rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		rb.used--
	}

	return n, nil
}
