package pmm

import (
	"osmem/kernel"
	"osmem/kernel/mem"
)

// Segment is an owning handle to a contiguous range of physical page frames
// treated as a single allocation unit. Ownership is carried by the per-page
// reference counts: constructing a segment claims every page in the range
// and folds the per-page handles into the range accounting, and releasing
// it decrements every page's count by exactly one. All pages in the range
// therefore share the same ownership epoch: either all of them belong to
// this handle or none do.
type Segment struct {
	arena *Arena
	start Frame
	count uint32
}

// SegmentFromUnused claims count unowned contiguous frames starting at
// start, stamps each with the requested kind and returns the owning range
// handle.
//
// It panics if count is zero or any page in the range is already in use.
func (a *Arena) SegmentFromUnused(start Frame, count uint32, kind PageKind) Segment {
	if count == 0 {
		panic("pmm: segment must span at least one page")
	}

	for i := uint32(0); i < count; i++ {
		a.claimFrame(start+Frame(i), kind)
	}

	return Segment{arena: a, start: start, count: count}
}

// SegmentFromPage absorbs a single already-owned page handle into a
// one-page segment. The page handle must not be used afterwards.
func SegmentFromPage(p Page) Segment {
	return Segment{arena: p.arena, start: p.frame, count: 1}
}

// StartFrame returns the first frame of the segment.
func (s Segment) StartFrame() Frame {
	return s.start
}

// StartPaddr returns the physical address of the first byte of the segment.
func (s Segment) StartPaddr() mem.Paddr {
	return s.start.Address()
}

// EndPaddr returns the physical address one past the last byte of the
// segment.
func (s Segment) EndPaddr() mem.Paddr {
	return (s.start + Frame(s.count)).Address()
}

// NumFrames returns the number of frames the segment spans.
func (s Segment) NumFrames() uint32 {
	return s.count
}

// Limit returns the length of the segment in bytes, implementing mem.IO.
func (s Segment) Limit() uintptr {
	return uintptr(s.count) << mem.PageShift
}

// Kind returns the page kind shared by all pages in the segment.
func (s Segment) Kind() PageKind {
	return s.arena.KindOf(s.start)
}

// Clone returns an additional owning handle to the same range, incrementing
// every page's reference count.
func (s Segment) Clone() Segment {
	for i := uint32(0); i < s.count; i++ {
		s.arena.incRef(s.start + Frame(i))
	}
	return s
}

// Release drops this owning handle by re-materializing and releasing one
// per-page handle for every page in the range. Pages whose count reaches
// zero re-enter the allocator's free pool.
func (s Segment) Release() {
	for i := uint32(0); i < s.count; i++ {
		s.arena.pageFromRaw(s.start + Frame(i)).Release()
	}
}

// SplitToPages converts the single range handle into one independent page
// handle per frame without touching any reference count: the ownership the
// segment carried is inherited, one count per page, by the returned
// handles. The segment must not be used (and in particular not Released)
// afterwards.
func (s Segment) SplitToPages() []Page {
	pages := make([]Page, s.count)
	for i := range pages {
		pages[i] = s.arena.pageFromRaw(s.start + Frame(i))
	}
	return pages
}

// Zero fills the entire segment with zero bytes.
func (s Segment) Zero() {
	mem.Memset(mem.PaddrToVaddr(s.StartPaddr()), 0, mem.Size(s.Limit()))
}

// ReadBytes copies len(buf) bytes starting at offset into buf.
func (s Segment) ReadBytes(offset uintptr, buf []byte) *kernel.Error {
	data, err := pageBytes(s.StartPaddr(), s.Limit(), offset, uintptr(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// WriteBytes copies buf into the segment starting at offset.
func (s Segment) WriteBytes(offset uintptr, buf []byte) *kernel.Error {
	data, err := pageBytes(s.StartPaddr(), s.Limit(), offset, uintptr(len(buf)))
	if err != nil {
		return err
	}
	copy(data, buf)
	return nil
}
