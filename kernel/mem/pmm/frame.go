// Package pmm implements the physical memory manager: the per-frame
// metadata arena that is the single source of truth for what each physical
// page is and who owns it, together with the reference-counted Page and
// Segment handle types and the allocation facade built on top of them.
package pmm

import (
	"math"

	"osmem/kernel/mem"
)

// Frame describes a physical page frame number. Frame n covers the physical
// byte range [n << PageShift, (n+1) << PageShift).
type Frame uintptr

// InvalidFrame is returned by frame allocators when they fail to reserve a
// frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is a valid frame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of this frame.
func (f Frame) Address() mem.Paddr {
	return mem.Paddr(f << mem.PageShift)
}

// FrameFromAddress returns the frame containing the given physical address.
func FrameFromAddress(paddr mem.Paddr) Frame {
	return Frame(paddr >> mem.PageShift)
}
