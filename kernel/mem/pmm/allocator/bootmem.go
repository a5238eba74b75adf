package allocator

import (
	"osmem/kernel"
	"osmem/kernel/hal/memmap"
	"osmem/kernel/kfmt"
	"osmem/kernel/mem"
	"osmem/kernel/mem/pmm"
)

var errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}

// BootMemAllocator implements a rudimentary physical memory allocator which
// is used to bootstrap the kernel.
//
// The allocator uses the memory region information provided by the
// bootloader to locate free blocks and hands out frames with a monotonic
// cursor. Due to the way the allocator works it is not possible to free
// allocated frames. Once the buddy allocator takes over, every frame at or
// below the cursor is treated as reserved.
type BootMemAllocator struct {
	regions []memmap.MemoryRegion

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame number.
	lastAllocFrame pmm.Frame
}

// NewBootMemAllocator creates a boot allocator that hands out frames from
// the usable regions of the given normalized memory map.
func NewBootMemAllocator(regions []memmap.MemoryRegion) *BootMemAllocator {
	return &BootMemAllocator{regions: regions}
}

// AllocatedUpTo returns the last frame the allocator handed out and whether
// any frame has been handed out at all. Every usable frame at or below the
// returned frame is consumed.
func (alloc *BootMemAllocator) AllocatedUpTo() (pmm.Frame, bool) {
	return alloc.lastAllocFrame, alloc.allocCount != 0
}

// AllocFrame reserves the next available free frame and returns it.
func (alloc *BootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	return alloc.AllocFrames(1)
}

// AllocFrames reserves count contiguous frames from a single usable region
// and returns the first one. Regions whose tail cannot fit the run are
// skipped; their remaining frames are sacrificed.
//
// AllocFrames returns an error if no usable region can satisfy the request.
func (alloc *BootMemAllocator) AllocFrames(count uint32) (pmm.Frame, *kernel.Error) {
	var err = errBootAllocOutOfMemory
	var allocFrame pmm.Frame

	memmap.Visit(alloc.regions, func(region *memmap.MemoryRegion) bool {
		if region.Type != memmap.RegionUsable {
			return true
		}

		startFrame, endFrame, ok := usableFrameRange(region)
		if !ok || (alloc.allocCount != 0 && alloc.lastAllocFrame >= endFrame) {
			return true
		}

		// The cursor either points into a previous region (or nothing
		// has been allocated yet), in which case the run starts at
		// this region's first frame, or it points inside this region
		// and the run starts right after it.
		next := startFrame
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= startFrame {
			next = alloc.lastAllocFrame + 1
		}

		if next+pmm.Frame(count) > endFrame+1 {
			return true
		}

		allocFrame = next
		err = nil
		return false
	})

	if err != nil {
		return pmm.InvalidFrame, err
	}

	alloc.allocCount += uint64(count)
	alloc.lastAllocFrame = allocFrame + pmm.Frame(count) - 1
	return allocFrame, nil
}

// usableFrameRange returns the first and last frame of a region after
// rounding the reported addresses inwards to page boundaries. Regions
// smaller than a single page report ok == false.
func usableFrameRange(region *memmap.MemoryRegion) (start, end pmm.Frame, ok bool) {
	startAddr := mem.AlignUp(uintptr(region.Base), uintptr(mem.PageSize))
	endAddr := mem.AlignDown(uintptr(region.End()), uintptr(mem.PageSize))
	if endAddr <= startAddr {
		return 0, 0, false
	}

	return pmm.FrameFromAddress(mem.Paddr(startAddr)), pmm.FrameFromAddress(mem.Paddr(endAddr)) - 1, true
}

// printMemoryMap logs the bootloader-provided memory map together with the
// amount of usable memory.
func (alloc *BootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	memmap.Visit(alloc.regions, func(region *memmap.MemoryRegion) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			uintptr(region.Base), uintptr(region.End()), uint64(region.Size), region.Type)

		if region.Type == memmap.RegionUsable {
			totalFree += mem.Size(region.Size)
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))
}
