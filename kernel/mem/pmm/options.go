package pmm

import (
	"osmem/kernel"
	"osmem/kernel/mem"
)

var (
	// ErrNoMemory is returned when the frame allocator cannot satisfy a
	// request. Callers decide whether to retry, fail or propagate.
	ErrNoMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	// ErrInvalidArgs is returned for requests that are malformed
	// regardless of memory pressure: zero frames, or options that do not
	// match the invoked allocation path.
	ErrInvalidArgs = &kernel.Error{Module: "pmm", Message: "invalid allocation arguments"}

	// ErrOverflow is returned when address or size arithmetic for the
	// request would wrap.
	ErrOverflow = &kernel.Error{Module: "pmm", Message: "allocation size overflows the address space"}
)

// AllocOptions describes a frame allocation request: how many pages, whether
// they must be physically contiguous and whether the caller accepts
// uninitialized memory.
type AllocOptions struct {
	nframes    uint32
	kind       PageKind
	contiguous bool
	uninit     bool
}

// NewAllocOptions creates an allocation request for nframes pages of the
// generic frame kind, non-contiguous and zero-filled by default.
func NewAllocOptions(nframes uint32) *AllocOptions {
	return &AllocOptions{
		nframes: nframes,
		kind:    KindFrame,
	}
}

// Contiguous sets whether the allocated pages must be physically contiguous.
func (o *AllocOptions) Contiguous(v bool) *AllocOptions {
	o.contiguous = v
	return o
}

// Uninit sets whether the allocated memory may be handed out without
// zero-filling it first. Callers of uninitialized allocations must not read
// a byte before writing it.
func (o *AllocOptions) Uninit(v bool) *AllocOptions {
	o.uninit = v
	return o
}

// Kind sets the page kind stamped on the allocated pages.
func (o *AllocOptions) Kind(kind PageKind) *AllocOptions {
	o.kind = kind
	return o
}

// validate performs the argument checks shared by every allocation path.
func (o *AllocOptions) validate() *kernel.Error {
	if o.nframes == 0 {
		return ErrInvalidArgs
	}
	// The total byte size must be representable: on 32-bit targets a
	// large page count silently wraps when converted to bytes, aliasing
	// two different physical ranges.
	if uintptr(o.nframes) > ^uintptr(0)>>mem.PageShift {
		return ErrOverflow
	}
	return nil
}

// Allocate allocates the requested pages and returns one owning handle per
// page. With the contiguous option the pages form a single physical run;
// otherwise each page is allocated independently from anywhere in the pool.
// If any constituent allocation fails, pages allocated so far are released
// back to the pool before ErrNoMemory is returned.
func (a *Arena) Allocate(o *AllocOptions) ([]Page, *kernel.Error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	if o.contiguous {
		seg, err := a.AllocateContiguous(o)
		if err != nil {
			return nil, err
		}
		return seg.SplitToPages(), nil
	}

	pages := make([]Page, 0, o.nframes)
	for i := uint32(0); i < o.nframes; i++ {
		frame, ok := a.alloc.Alloc(1)
		if !ok {
			for _, page := range pages {
				page.Release()
			}
			return nil, ErrNoMemory
		}

		page := a.PageFromUnused(frame, o.kind)
		if !o.uninit {
			page.Zero()
		}
		pages = append(pages, page)
	}

	return pages, nil
}

// AllocateSingle allocates exactly one page. The request must have been
// built with nframes == 1.
func (a *Arena) AllocateSingle(o *AllocOptions) (Page, *kernel.Error) {
	if err := o.validate(); err != nil {
		return Page{}, err
	}
	if o.nframes != 1 {
		return Page{}, ErrInvalidArgs
	}

	frame, ok := a.alloc.Alloc(1)
	if !ok {
		return Page{}, ErrNoMemory
	}

	page := a.PageFromUnused(frame, o.kind)
	if !o.uninit {
		page.Zero()
	}
	return page, nil
}

// AllocateContiguous allocates the requested pages as a single physically
// contiguous segment. The request must have been built with the contiguous
// option set.
func (a *Arena) AllocateContiguous(o *AllocOptions) (Segment, *kernel.Error) {
	if err := o.validate(); err != nil {
		return Segment{}, err
	}
	if !o.contiguous {
		return Segment{}, ErrInvalidArgs
	}

	start, ok := a.alloc.Alloc(o.nframes)
	if !ok {
		return Segment{}, ErrNoMemory
	}

	seg := a.SegmentFromUnused(start, o.nframes, o.kind)
	if !o.uninit {
		seg.Zero()
	}
	return seg, nil
}

// ReleaseAll releases every page handle in the vector. The slice must not
// be used afterwards.
func ReleaseAll(pages []Page) {
	for _, page := range pages {
		page.Release()
	}
}
