// Package iomem hands out bounds-checked handles over memory-mapped I/O
// ranges. Drivers request a physical range; the registry verifies that it
// lies entirely inside a region the boot memory map declared as
// device-owned and returns an IoMem handle whose accessors go through the
// physical-to-virtual linear mapping.
package iomem

import (
	"sync/atomic"
	"unsafe"

	"osmem/kernel"
	"osmem/kernel/hal/memmap"
	"osmem/kernel/mem"
)

var (
	// ErrNotRegistered is returned when the requested physical range is
	// not fully contained in a registered device memory region.
	ErrNotRegistered = &kernel.Error{Module: "iomem", Message: "range not inside a registered mmio region"}

	// ErrOutOfBounds is returned by accessors when the requested range
	// exceeds the handle's extent.
	ErrOutOfBounds = &kernel.Error{Module: "iomem", Message: "access outside the mmio range"}

	// ErrUnaligned is returned for register accesses whose offset is not
	// a multiple of the register width.
	ErrUnaligned = &kernel.Error{Module: "iomem", Message: "unaligned mmio register access"}
)

// Registry tracks the physical ranges that hold device registers instead of
// RAM. It is populated once from the boot memory map; the framebuffer and
// the firmware-reserved ranges are the regions device drivers may claim.
type Registry struct {
	ranges []memmap.MemoryRegion
}

// NewRegistry builds an MMIO registry from the normalized boot memory map.
func NewRegistry(regions []memmap.MemoryRegion) *Registry {
	r := &Registry{}
	memmap.Visit(regions, func(region *memmap.MemoryRegion) bool {
		switch region.Type {
		case memmap.RegionFramebuffer, memmap.RegionReserved:
			r.ranges = append(r.ranges, *region)
		}
		return true
	})
	return r
}

// Request returns a handle over the physical range [base, base+size). The
// range must be non-empty, must not wrap the address space and must lie
// entirely inside a single registered device region; RAM handed to the
// frame allocator can never be claimed through the registry.
func (r *Registry) Request(base mem.Paddr, size uintptr) (*IoMem, *kernel.Error) {
	if size == 0 || uintptr(base)+size < uintptr(base) {
		return nil, ErrNotRegistered
	}

	for i := range r.ranges {
		region := &r.ranges[i]
		if base >= region.Base && base < region.End() && size <= uintptr(region.End()-base) {
			return &IoMem{base: base, limit: size}, nil
		}
	}

	return nil, ErrNotRegistered
}

// IoMem is a handle to a verified device register range. All accessors are
// bounds-checked against the handle's limit; register-sized loads and
// stores are performed with single atomic instructions so that the compiler
// cannot elide, tear or reorder them.
//
// IoMem implements mem.IO.
type IoMem struct {
	base  mem.Paddr
	limit uintptr
}

var _ mem.IO = (*IoMem)(nil)

// Base returns the physical address of the first byte of the range.
func (m *IoMem) Base() mem.Paddr {
	return m.base
}

// Limit returns the length of the range in bytes, implementing mem.IO.
func (m *IoMem) Limit() uintptr {
	return m.limit
}

// vaddrAt returns the kernel-virtual alias of byte offset of the range.
func (m *IoMem) vaddrAt(offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(mem.PaddrToVaddr(m.base + mem.Paddr(offset))))
}

// check validates the byte range [offset, offset+count) against the
// handle's limit. When width is non-zero, offset must additionally be a
// multiple of it.
func (m *IoMem) check(offset, count, width uintptr) *kernel.Error {
	if offset > m.limit || count > m.limit-offset {
		return ErrOutOfBounds
	}
	if width != 0 && offset&(width-1) != 0 {
		return ErrUnaligned
	}
	return nil
}

// ReadBytes copies len(buf) bytes starting at offset into buf using
// single-byte loads; device memory must never be accessed with wider
// transfers than the caller asked for.
func (m *IoMem) ReadBytes(offset uintptr, buf []byte) *kernel.Error {
	if err := m.check(offset, uintptr(len(buf)), 0); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = *(*byte)(m.vaddrAt(offset + uintptr(i)))
	}
	return nil
}

// WriteBytes copies buf into the range starting at offset using single-byte
// stores.
func (m *IoMem) WriteBytes(offset uintptr, buf []byte) *kernel.Error {
	if err := m.check(offset, uintptr(len(buf)), 0); err != nil {
		return err
	}
	for i := range buf {
		*(*byte)(m.vaddrAt(offset + uintptr(i))) = buf[i]
	}
	return nil
}

// ReadUint8 reads the byte register at offset.
func (m *IoMem) ReadUint8(offset uintptr) (uint8, *kernel.Error) {
	if err := m.check(offset, 1, 1); err != nil {
		return 0, err
	}
	return *(*uint8)(m.vaddrAt(offset)), nil
}

// WriteUint8 writes the byte register at offset.
func (m *IoMem) WriteUint8(offset uintptr, v uint8) *kernel.Error {
	if err := m.check(offset, 1, 1); err != nil {
		return err
	}
	*(*uint8)(m.vaddrAt(offset)) = v
	return nil
}

// ReadUint16 reads the 16-bit register at offset.
func (m *IoMem) ReadUint16(offset uintptr) (uint16, *kernel.Error) {
	if err := m.check(offset, 2, 2); err != nil {
		return 0, err
	}
	return *(*uint16)(m.vaddrAt(offset)), nil
}

// WriteUint16 writes the 16-bit register at offset.
func (m *IoMem) WriteUint16(offset uintptr, v uint16) *kernel.Error {
	if err := m.check(offset, 2, 2); err != nil {
		return err
	}
	*(*uint16)(m.vaddrAt(offset)) = v
	return nil
}

// ReadUint32 reads the 32-bit register at offset with a single atomic load.
func (m *IoMem) ReadUint32(offset uintptr) (uint32, *kernel.Error) {
	if err := m.check(offset, 4, 4); err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(m.vaddrAt(offset))), nil
}

// WriteUint32 writes the 32-bit register at offset with a single atomic
// store.
func (m *IoMem) WriteUint32(offset uintptr, v uint32) *kernel.Error {
	if err := m.check(offset, 4, 4); err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(m.vaddrAt(offset)), v)
	return nil
}

// ReadUint64 reads the 64-bit register at offset with a single atomic load.
func (m *IoMem) ReadUint64(offset uintptr) (uint64, *kernel.Error) {
	if err := m.check(offset, 8, 8); err != nil {
		return 0, err
	}
	return atomic.LoadUint64((*uint64)(m.vaddrAt(offset))), nil
}

// WriteUint64 writes the 64-bit register at offset with a single atomic
// store.
func (m *IoMem) WriteUint64(offset uintptr, v uint64) *kernel.Error {
	if err := m.check(offset, 8, 8); err != nil {
		return err
	}
	atomic.StoreUint64((*uint64)(m.vaddrAt(offset)), v)
	return nil
}

// Slice returns a handle covering the byte range [start, end) of this
// range. It panics if the range is empty or exceeds the handle's bounds.
func (m *IoMem) Slice(start, end uintptr) *IoMem {
	if start >= end || end > m.limit {
		panic("iomem: subrange is empty or out of bounds")
	}
	return &IoMem{base: m.base + mem.Paddr(start), limit: end - start}
}
