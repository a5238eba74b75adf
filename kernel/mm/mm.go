// Package mm assembles the kernel memory management subsystems into a
// single context object: the boot and buddy frame allocators, the page
// metadata arena, the RCU monitor and the MMIO registry. The context is
// constructed exactly once during boot from the memory map; tests construct
// as many independent contexts as they need.
package mm

import (
	"unsafe"

	"osmem/kernel"
	"osmem/kernel/cpu"
	"osmem/kernel/hal/memmap"
	"osmem/kernel/kfmt"
	"osmem/kernel/mem"
	"osmem/kernel/mem/iomem"
	"osmem/kernel/mem/pmm"
	"osmem/kernel/mem/pmm/allocator"
	"osmem/kernel/sync"
)

// ErrNoUsableMemory is returned when the boot memory map contains no usable
// RAM to build the allocator structures in.
var ErrNoUsableMemory = &kernel.Error{Module: "mm", Message: "memory map contains no usable memory"}

// KernelMemoryContext owns every memory management subsystem. All frame
// allocation, ownership tracking, RCU reclamation and MMIO access flows
// through one context; no package-level singleton exists.
type KernelMemoryContext struct {
	regions []memmap.MemoryRegion

	frames  *allocator.LockedAllocator
	arena   *pmm.Arena
	monitor *sync.Monitor
	iomem   *iomem.Registry
}

// Init builds a memory context from the raw boot memory map.
//
// The map is normalized and handed to a boot allocator, which reserves the
// frames backing the page metadata table and the buddy allocator bitmaps.
// Both structures are overlaid directly onto those frames through the
// linear mapping, so the mapping must be registered with
// mem.SetLinearOffset before Init runs. The remaining usable frames seed
// the buddy allocator.
//
// numCPUs sizes the RCU monitor; passing 0 uses the enumerated CPU count.
func Init(bootMap []memmap.MemoryRegion, numCPUs int) (*KernelMemoryContext, *kernel.Error) {
	regions := memmap.Normalize(bootMap)

	maxFrames := usableFrameLimit(regions)
	if maxFrames == 0 {
		return nil, ErrNoUsableMemory
	}

	earlyAllocator := allocator.NewBootMemAllocator(regions)

	// The metadata table holds one slot per frame up to the highest
	// usable frame, including the holes; slots inside holes stay in the
	// unowned state forever.
	slotBytes := maxFrames * unsafe.Sizeof(pmm.MetaSlot{})
	slotStorage, err := reserveStructFrames(earlyAllocator, slotBytes)
	if err != nil {
		return nil, err
	}

	bitmapWords := allocator.BitmapWords(maxFrames)
	bitmapStorage, err := reserveStructFrames(earlyAllocator, bitmapWords*8)
	if err != nil {
		return nil, err
	}

	kfmt.Printf("[mm] page metadata: %d frames, %d bytes\n", uint64(maxFrames), uint64(slotBytes))

	frames := allocator.Init(regions, earlyAllocator, maxFrames, unsafe.Slice((*uint64)(bitmapStorage), bitmapWords))
	arena := pmm.NewArena(unsafe.Slice((*pmm.MetaSlot)(slotStorage), maxFrames), frames)

	if numCPUs == 0 {
		numCPUs = cpu.Count()
	}

	return &KernelMemoryContext{
		regions: regions,
		frames:  frames,
		arena:   arena,
		monitor: sync.NewMonitor(numCPUs),
		iomem:   iomem.NewRegistry(regions),
	}, nil
}

// usableFrameLimit returns one past the highest usable frame in the
// normalized map.
func usableFrameLimit(regions []memmap.MemoryRegion) uintptr {
	var limit uintptr
	memmap.Visit(regions, func(region *memmap.MemoryRegion) bool {
		if region.Type != memmap.RegionUsable {
			return true
		}
		end := mem.AlignDown(uintptr(region.End()), uintptr(mem.PageSize)) >> mem.PageShift
		if end > limit {
			limit = end
		}
		return true
	})
	return limit
}

// reserveStructFrames reserves enough boot-allocator frames to hold size
// bytes and returns the kernel-virtual address of the zeroed run.
func reserveStructFrames(earlyAllocator *allocator.BootMemAllocator, size uintptr) (unsafe.Pointer, *kernel.Error) {
	frames := mem.Size(size).Pages()
	frame, err := earlyAllocator.AllocFrames(frames)
	if err != nil {
		return nil, err
	}

	vaddr := mem.PaddrToVaddr(frame.Address())
	mem.Memset(vaddr, 0, mem.Size(frames)*mem.PageSize)
	return unsafe.Pointer(uintptr(vaddr)), nil
}

// MemoryMap returns the normalized memory map the context was built from.
// The returned slice must not be mutated.
func (ctx *KernelMemoryContext) MemoryMap() []memmap.MemoryRegion {
	return ctx.regions
}

// Arena returns the page metadata arena.
func (ctx *KernelMemoryContext) Arena() *pmm.Arena {
	return ctx.arena
}

// Monitor returns the RCU monitor. Rcu cells are created against it with
// sync.NewRcu.
func (ctx *KernelMemoryContext) Monitor() *sync.Monitor {
	return ctx.monitor
}

// Allocate allocates pages per the given options and returns one owning
// handle per page.
func (ctx *KernelMemoryContext) Allocate(o *pmm.AllocOptions) ([]pmm.Page, *kernel.Error) {
	return ctx.arena.Allocate(o)
}

// AllocateSingle allocates exactly one page.
func (ctx *KernelMemoryContext) AllocateSingle(o *pmm.AllocOptions) (pmm.Page, *kernel.Error) {
	return ctx.arena.AllocateSingle(o)
}

// AllocateContiguous allocates a physically contiguous run of pages as a
// single segment handle.
func (ctx *KernelMemoryContext) AllocateContiguous(o *pmm.AllocOptions) (pmm.Segment, *kernel.Error) {
	return ctx.arena.AllocateContiguous(o)
}

// PassQuiescentState reports a quiescent state for the given CPU to the RCU
// monitor. The scheduler invokes this at every context switch and
// return-to-user boundary.
func (ctx *KernelMemoryContext) PassQuiescentState(cpuID int) {
	ctx.monitor.PassQuiescentState(cpuID)
}

// RequestIoMem returns a bounds-checked handle over the physical MMIO range
// [base, base+size).
func (ctx *KernelMemoryContext) RequestIoMem(base mem.Paddr, size uintptr) (*iomem.IoMem, *kernel.Error) {
	return ctx.iomem.Request(base, size)
}

// FreePages returns the number of frames currently available for
// allocation.
func (ctx *KernelMemoryContext) FreePages() uintptr {
	return ctx.frames.FreePages()
}

// TotalPages returns the number of frames the buddy allocator manages.
func (ctx *KernelMemoryContext) TotalPages() uintptr {
	return ctx.frames.TotalPages()
}
