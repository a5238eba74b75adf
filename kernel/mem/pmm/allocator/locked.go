package allocator

import (
	"osmem/kernel/hal/memmap"
	"osmem/kernel/kfmt"
	"osmem/kernel/mem/pmm"
	"osmem/kernel/sync"
)

// LockedAllocator wraps a BuddyAllocator with a spinlock so that it can be
// shared by every CPU. All allocation and deallocation calls serialize
// through the lock; on architectures where frame allocation can be invoked
// from interrupt context the arch layer takes the lock with interrupts
// disabled.
//
// LockedAllocator implements pmm.Allocator.
type LockedAllocator struct {
	lock  sync.Spinlock
	buddy *BuddyAllocator
}

// NewLockedAllocator wraps the given buddy allocator.
func NewLockedAllocator(buddy *BuddyAllocator) *LockedAllocator {
	return &LockedAllocator{buddy: buddy}
}

// Alloc reserves count contiguous frames and returns the first one, or
// ok == false on exhaustion.
func (alloc *LockedAllocator) Alloc(count uint32) (pmm.Frame, bool) {
	alloc.lock.Acquire()
	frame, ok := alloc.buddy.Alloc(count)
	alloc.lock.Release()
	return frame, ok
}

// AllocAligned reserves count contiguous frames whose start is aligned to
// alignFrames frames, or ok == false on exhaustion.
func (alloc *LockedAllocator) AllocAligned(count, alignFrames uint32) (pmm.Frame, bool) {
	alloc.lock.Acquire()
	frame, ok := alloc.buddy.AllocAligned(count, alignFrames)
	alloc.lock.Release()
	return frame, ok
}

// Dealloc returns a previously allocated frame range to the free pool.
func (alloc *LockedAllocator) Dealloc(start pmm.Frame, count uint32) {
	alloc.lock.Acquire()
	alloc.buddy.Dealloc(start, count)
	alloc.lock.Release()
}

// TotalPages returns the total number of frames the allocator manages.
func (alloc *LockedAllocator) TotalPages() uintptr {
	alloc.lock.Acquire()
	total := alloc.buddy.TotalPages()
	alloc.lock.Release()
	return total
}

// FreePages returns the number of frames currently free.
func (alloc *LockedAllocator) FreePages() uintptr {
	alloc.lock.Acquire()
	free := alloc.buddy.FreePages()
	alloc.lock.Release()
	return free
}

// Init sets up the kernel physical frame allocation sub-system over the
// given normalized memory map: it logs the map, seeds the buddy allocator
// with every usable frame not already consumed by the boot allocator and
// returns the lock-wrapped allocator.
//
// The bitmap storage for the buddy structures is provided by the caller;
// the memory context reserves it through the boot allocator before calling
// Init.
func Init(regions []memmap.MemoryRegion, earlyAllocator *BootMemAllocator, maxFrames uintptr, bitmapStorage []uint64) *LockedAllocator {
	earlyAllocator.printMemoryMap()

	buddy := NewBuddyAllocator(maxFrames, bitmapStorage)
	lastEarlyFrame, anyEarly := earlyAllocator.AllocatedUpTo()

	memmap.Visit(regions, func(region *memmap.MemoryRegion) bool {
		if region.Type != memmap.RegionUsable {
			return true
		}

		startFrame, endFrame, ok := usableFrameRange(region)
		if !ok {
			return true
		}

		// Skip the frames the boot allocator handed out; they stay
		// reserved for the kernel's lifetime.
		if anyEarly && lastEarlyFrame >= startFrame {
			if lastEarlyFrame >= endFrame {
				return true
			}
			startFrame = lastEarlyFrame + 1
		}

		buddy.AddFrames(startFrame, uint32(endFrame-startFrame+1))
		return true
	})

	kfmt.Printf("[frame_alloc] free pages: %d/%d\n", uint64(buddy.FreePages()), uint64(buddy.TotalPages()))

	return NewLockedAllocator(buddy)
}
