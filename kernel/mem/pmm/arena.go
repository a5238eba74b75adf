package pmm

// Allocator is the frame-range allocator the arena returns pages to when
// their last owning handle is released. The buddy allocator in the allocator
// subpackage provides the production implementation; tests inject
// instrumented ones.
type Allocator interface {
	// Alloc reserves count contiguous frames and returns the first one,
	// or ok == false if no sufficiently large free run exists.
	Alloc(count uint32) (Frame, bool)

	// AllocAligned behaves like Alloc but the returned frame is
	// additionally aligned to alignFrames frames, which must be a power
	// of two.
	AllocAligned(count, alignFrames uint32) (Frame, bool)

	// Dealloc returns a previously allocated, exactly-matching frame
	// range to the free pool.
	Dealloc(start Frame, count uint32)
}

// Arena owns the page metadata table and mediates every ownership transition
// of every physical page. The free set maintained by the underlying
// allocator is always a subset of the pages whose metadata records no owner.
type Arena struct {
	slots []MetaSlot
	alloc Allocator
}

// NewArena creates an arena tracking frames [0, len(slots)) whose freed
// pages are returned to alloc. The slot storage is provided by the caller:
// the memory context overlays it on physical frames reserved through the
// boot allocator, while tests pass a plain slice.
func NewArena(slots []MetaSlot, alloc Allocator) *Arena {
	for i := range slots {
		slots[i].reset()
	}

	return &Arena{
		slots: slots,
		alloc: alloc,
	}
}

// MaxFrames returns the number of frames the arena tracks metadata for.
func (a *Arena) MaxFrames() uintptr {
	return uintptr(len(a.slots))
}

// slot returns the metadata record for the given frame. Referencing a frame
// outside every registered region is a fatal bookkeeping error.
func (a *Arena) slot(frame Frame) *MetaSlot {
	if uintptr(frame) >= uintptr(len(a.slots)) {
		panic("pmm: frame outside any registered memory region")
	}
	return &a.slots[frame]
}

// KindOf returns the kind recorded for the given frame.
func (a *Arena) KindOf(frame Frame) PageKind {
	return PageKind(a.slot(frame).kind.Load())
}

// claimFrame atomically claims an unowned frame, stamps its kind and
// publishes a reference count of 1. It panics if the frame is already in
// use: the allocator must never hand out a page that still has an owner, so
// a failed claim indicates corrupted bookkeeping in the caller.
func (a *Arena) claimFrame(frame Frame, kind PageKind) {
	slot := a.slot(frame)

	// Hold the slot in the transient 0 state while stamping the kind so
	// that no other CPU observes a claimed page with a stale kind.
	if !slot.refCount.CompareAndSwap(refUnused, 0) {
		panic("pmm: page already in use when claiming from unused")
	}
	slot.kind.Store(uint32(kind))
	slot.refCount.Store(1)
}

// incRef increments the reference count of a frame that already has at
// least one owner.
func (a *Arena) incRef(frame Frame) {
	refs := a.slot(frame).refCount.Add(1)
	if refs == 0 || refs == 1 {
		// The count was refUnused (no owner) or the transient 0 (claim
		// in flight): neither may be the source of a new reference.
		panic("pmm: reference taken on an unowned page")
	}
}

// decRef decrements the reference count of an owned frame. When the count
// reaches zero the page reverts to KindFree and the frame re-enters the
// allocator's free pool. Decrementing an unowned frame is a double free and
// therefore fatal.
func (a *Arena) decRef(frame Frame) {
	slot := a.slot(frame)

	for {
		refs := slot.refCount.Load()
		if refs == refUnused || refs == 0 {
			panic("pmm: release of a page that has no owner")
		}

		if !slot.refCount.CompareAndSwap(refs, refs-1) {
			continue
		}

		if refs == 1 {
			// Last owner: revert to the unowned state before the
			// frame becomes allocatable again.
			slot.reset()
			a.alloc.Dealloc(frame, 1)
		}
		return
	}
}

// refCount returns the number of owning handles currently referencing the
// frame, or 0 if the frame is unowned. The value may be stale by the time
// the caller acts on it.
func (a *Arena) refCount(frame Frame) uint32 {
	refs := a.slot(frame).refCount.Load()
	if refs == refUnused {
		return 0
	}
	return refs
}
