package pmm

import (
	"sync/atomic"

	"osmem/kernel"
	"osmem/kernel/mem"
)

// SegmentSlice is a cheaply cloneable view over part of a backing segment.
// Instead of touching the per-page metadata counts, all slices of a segment
// share a single reference count on the backing segment itself, so cloning
// and sub-slicing are O(1) regardless of how many pages the view covers.
// The backing segment is released when the last slice referring to it is.
type SegmentSlice struct {
	shared *sharedSegment

	// The byte range of the view, relative to the backing segment start.
	off, size uintptr
}

type sharedSegment struct {
	seg  Segment
	refs atomic.Int32
}

// SliceOf takes ownership of the segment and returns a slice covering all
// of it. The segment handle must not be used directly afterwards.
func SliceOf(seg Segment) SegmentSlice {
	shared := &sharedSegment{seg: seg}
	shared.refs.Store(1)

	return SegmentSlice{
		shared: shared,
		off:    0,
		size:   seg.Limit(),
	}
}

// Limit returns the length of the view in bytes, implementing mem.IO.
func (s SegmentSlice) Limit() uintptr {
	return s.size
}

// StartPaddr returns the physical address of the first byte of the view.
func (s SegmentSlice) StartPaddr() mem.Paddr {
	return s.shared.seg.StartPaddr() + mem.Paddr(s.off)
}

// Clone returns an additional handle to the same view. Only the backing
// segment's shared count is incremented; no per-page metadata is touched.
func (s SegmentSlice) Clone() SegmentSlice {
	s.shared.refs.Add(1)
	return s
}

// Slice returns a sub-view covering the byte range [start, end) of this
// view. It panics if the range is empty or exceeds the view's bounds; there
// is no silent clamping.
func (s SegmentSlice) Slice(start, end uintptr) SegmentSlice {
	if start >= end || end > s.size {
		panic("pmm: segment slice range is empty or out of bounds")
	}

	s.shared.refs.Add(1)
	return SegmentSlice{
		shared: s.shared,
		off:    s.off + start,
		size:   end - start,
	}
}

// Release drops this view. When the last slice referring to the backing
// segment is released, the segment itself is.
func (s SegmentSlice) Release() {
	refs := s.shared.refs.Add(-1)
	if refs < 0 {
		panic("pmm: segment slice released more than once")
	}
	if refs == 0 {
		s.shared.seg.Release()
	}
}

// ReadBytes copies len(buf) bytes starting at offset into buf.
func (s SegmentSlice) ReadBytes(offset uintptr, buf []byte) *kernel.Error {
	if offset > s.size || uintptr(len(buf)) > s.size-offset {
		return ErrOutOfBounds
	}
	return s.shared.seg.ReadBytes(s.off+offset, buf)
}

// WriteBytes copies buf into the view starting at offset.
func (s SegmentSlice) WriteBytes(offset uintptr, buf []byte) *kernel.Error {
	if offset > s.size || uintptr(len(buf)) > s.size-offset {
		return ErrOutOfBounds
	}
	return s.shared.seg.WriteBytes(s.off+offset, buf)
}
