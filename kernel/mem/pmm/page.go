package pmm

import (
	"unsafe"

	"osmem/kernel"
	"osmem/kernel/mem"
)

var (
	// ErrOutOfBounds is returned by byte-level accessors when the
	// requested range exceeds the handle's extent.
	ErrOutOfBounds = &kernel.Error{Module: "pmm", Message: "access outside the owned physical range"}
)

// Handles over regular RAM expose bounds-checked byte access.
var (
	_ mem.IO = Page{}
	_ mem.IO = Segment{}
	_ mem.IO = SegmentSlice{}
)

// Page is an owning, reference-counted handle to exactly one physical page
// frame. Handles are cheap values: cloning one increments the page's
// reference count and releasing one decrements it, with the last release
// returning the frame to the allocator. A Page must be released exactly
// once per handle; using a handle after releasing it is a bug.
type Page struct {
	arena *Arena
	frame Frame
}

// PageFromUnused claims the given unowned frame, stamps its metadata with
// the requested kind and returns the first owning handle.
//
// It panics if the page is already in use or the frame lies outside every
// registered region: both indicate corrupted bookkeeping in the caller, not
// a recoverable condition.
func (a *Arena) PageFromUnused(frame Frame, kind PageKind) Page {
	a.claimFrame(frame, kind)
	return Page{arena: a, frame: frame}
}

// pageFromRaw reconstructs a handle whose ownership accounting is already
// reflected in the page's reference count, without incrementing it. The
// caller must guarantee exactly one reconstruction per prior forgotten
// handle.
func (a *Arena) pageFromRaw(frame Frame) Page {
	return Page{arena: a, frame: frame}
}

// Frame returns the physical frame number the handle owns.
func (p Page) Frame() Frame {
	return p.frame
}

// Paddr returns the physical address of the first byte of the page.
func (p Page) Paddr() mem.Paddr {
	return p.frame.Address()
}

// Kind returns the page kind recorded in the page's metadata.
func (p Page) Kind() PageKind {
	return p.arena.KindOf(p.frame)
}

// RefCount returns the page's current reference count. The value can be
// changed by other CPUs at any time, including between this call and any
// action taken on the result.
func (p Page) RefCount() uint32 {
	return p.arena.refCount(p.frame)
}

// Clone returns an additional owning handle to the same page.
func (p Page) Clone() Page {
	p.arena.incRef(p.frame)
	return Page{arena: p.arena, frame: p.frame}
}

// Release drops this owning handle. When the last handle is released the
// page reverts to the free kind and its frame re-enters the allocator's
// free pool.
func (p Page) Release() {
	p.arena.decRef(p.frame)
}

// Limit returns the page size in bytes, implementing mem.IO.
func (p Page) Limit() uintptr {
	return uintptr(mem.PageSize)
}

// Zero fills the entire page with zero bytes.
func (p Page) Zero() {
	mem.Memset(mem.PaddrToVaddr(p.Paddr()), 0, mem.PageSize)
}

// ReadBytes copies len(buf) bytes starting at offset into buf.
func (p Page) ReadBytes(offset uintptr, buf []byte) *kernel.Error {
	data, err := pageBytes(p.Paddr(), p.Limit(), offset, uintptr(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// WriteBytes copies buf into the page starting at offset.
func (p Page) WriteBytes(offset uintptr, buf []byte) *kernel.Error {
	data, err := pageBytes(p.Paddr(), p.Limit(), offset, uintptr(len(buf)))
	if err != nil {
		return err
	}
	copy(data, buf)
	return nil
}

// pageBytes returns a byte view over [offset, offset+count) of the physical
// range starting at base with the given limit, going through the linear
// mapping.
func pageBytes(base mem.Paddr, limit, offset, count uintptr) ([]byte, *kernel.Error) {
	if offset > limit || count > limit-offset {
		return nil, ErrOutOfBounds
	}
	if count == 0 {
		return nil, nil
	}

	vaddr := mem.PaddrToVaddr(base + mem.Paddr(offset))
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(vaddr))), int(count)), nil
}
