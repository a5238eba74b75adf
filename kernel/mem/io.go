package mem

import "osmem/kernel"

// IO is implemented by objects that expose bounds-checked random access to a
// contiguous range of memory: frame and segment handles over regular RAM and
// IoMem capabilities over device registers.
type IO interface {
	// Limit returns the size of the accessible range in bytes.
	Limit() uintptr

	// ReadBytes copies len(buf) bytes starting at the given offset into
	// buf. It fails with an out-of-bounds error if the read would exceed
	// Limit.
	ReadBytes(offset uintptr, buf []byte) *kernel.Error

	// WriteBytes copies buf into the range starting at the given offset.
	// It fails with an out-of-bounds error if the write would exceed
	// Limit.
	WriteBytes(offset uintptr, buf []byte) *kernel.Error
}
