package pmm

import (
	"testing"

	"osmem/kernel/mem"
)

func TestSliceSharesBackingSegment(t *testing.T) {
	arena, alloc, _ := newTestArena(t, 16)

	slice := SliceOf(arena.SegmentFromUnused(4, 4, KindFrame))
	if exp, got := uintptr(4*mem.PageSize), slice.Limit(); got != exp {
		t.Fatalf("expected limit %d; got %d", exp, got)
	}

	// Cloning and sub-slicing touch only the shared count, never the
	// per-page metadata.
	clone := slice.Clone()
	sub := slice.Slice(uintptr(mem.PageSize), 3*uintptr(mem.PageSize))
	for frame := Frame(4); frame < 8; frame++ {
		if exp, got := uint32(1), arena.refCount(frame); got != exp {
			t.Fatalf("expected frame %d to keep ref count %d; got %d", frame, exp, got)
		}
	}

	if exp, got := uintptr(2*mem.PageSize), sub.Limit(); got != exp {
		t.Fatalf("expected sub-slice limit %d; got %d", exp, got)
	}
	if exp, got := mem.Paddr(5<<mem.PageShift), sub.StartPaddr(); got != exp {
		t.Fatalf("expected sub-slice start paddr 0x%x; got 0x%x", uintptr(exp), uintptr(got))
	}

	// The backing segment survives until the last view is gone.
	slice.Release()
	clone.Release()
	if len(alloc.freed) != 0 {
		t.Fatal("backing segment released while a view still refers to it")
	}

	sub.Release()
	for frame := Frame(4); frame < 8; frame++ {
		if !alloc.freedFrame(frame) {
			t.Fatalf("expected frame %d to re-enter the free pool", frame)
		}
	}
}

func TestSliceRangePanics(t *testing.T) {
	arena, _, _ := newTestArena(t, 16)

	slice := SliceOf(arena.SegmentFromUnused(0, 2, KindFrame))
	defer slice.Release()

	specs := []struct {
		start, end uintptr
	}{
		{0, 0},
		{8, 8},
		{16, 8},
		{0, slice.Limit() + 1},
	}

	for specIndex, spec := range specs {
		func() {
			defer func() {
				if err := recover(); err == nil {
					t.Errorf("[spec %d] expected slicing [%d, %d) to panic", specIndex, spec.start, spec.end)
				}
			}()
			slice.Slice(spec.start, spec.end)
		}()
	}
}

func TestSliceReadWriteIsViewRelative(t *testing.T) {
	arena, _, backing := newTestArena(t, 16)

	slice := SliceOf(arena.SegmentFromUnused(2, 3, KindFrame))
	defer slice.Release()

	sub := slice.Slice(uintptr(mem.PageSize), 3*uintptr(mem.PageSize))
	defer sub.Release()

	payload := []byte("view relative")
	if err := sub.WriteBytes(16, payload); err != nil {
		t.Fatal(err)
	}

	// Offset 16 of the sub-view is offset 16 of physical frame 3.
	base := 3 << mem.PageShift
	if got := string(backing[base+16 : base+16+len(payload)]); got != string(payload) {
		t.Fatalf("expected the backing memory to contain %q; got %q", payload, got)
	}

	readBuf := make([]byte, len(payload))
	if err := sub.ReadBytes(16, readBuf); err != nil {
		t.Fatal(err)
	}
	if string(readBuf) != string(payload) {
		t.Fatalf("expected to read back %q; got %q", payload, readBuf)
	}

	// Bounds are checked against the view, not the backing segment.
	if err := sub.ReadBytes(sub.Limit()-1, make([]byte, 2)); err != ErrOutOfBounds {
		t.Fatalf("expected error %v for a read crossing the view end; got %v", ErrOutOfBounds, err)
	}
	if err := sub.WriteBytes(sub.Limit()+1, nil); err != ErrOutOfBounds {
		t.Fatalf("expected error %v for a write past the view end; got %v", ErrOutOfBounds, err)
	}
}

func TestSliceOverReleasePanics(t *testing.T) {
	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected releasing a view more times than it was cloned to panic")
		}
	}()

	arena, _, _ := newTestArena(t, 16)
	slice := SliceOf(arena.SegmentFromUnused(1, 1, KindFrame))
	slice.Release()
	slice.Release()
}
