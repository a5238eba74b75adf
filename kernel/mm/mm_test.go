package mm

import (
	"testing"
	"unsafe"

	"osmem/kernel/hal/memmap"
	"osmem/kernel/mem"
	"osmem/kernel/mem/pmm"
	"osmem/kernel/sync"
)

// newTestContext builds a context over 1Mb of byte-slice-backed "physical"
// RAM plus one page of reserved device memory right above it.
func newTestContext(t *testing.T, numCPUs int) (*KernelMemoryContext, []byte) {
	backing := make([]byte, 0x101000)
	mem.SetLinearOffset(uintptr(unsafe.Pointer(&backing[0])))
	t.Cleanup(func() {
		mem.SetLinearOffset(0)
		_ = backing
	})

	ctx, err := Init([]memmap.MemoryRegion{
		{Base: 0x0, Size: 0x100000, Type: memmap.RegionUsable},
		{Base: 0x100000, Size: 0x1000, Type: memmap.RegionReserved},
	}, numCPUs)
	if err != nil {
		t.Fatal(err)
	}
	return ctx, backing
}

func TestInitBuildsWorkingContext(t *testing.T) {
	ctx, _ := newTestContext(t, 2)

	// 256 usable frames minus one for the metadata table and one for the
	// buddy bitmaps.
	if exp, got := uintptr(254), ctx.TotalPages(); got != exp {
		t.Fatalf("expected %d total pages; got %d", exp, got)
	}
	if exp, got := uintptr(254), ctx.FreePages(); got != exp {
		t.Fatalf("expected %d free pages; got %d", exp, got)
	}
	if exp, got := 2, ctx.Monitor().NumCPUs(); got != exp {
		t.Fatalf("expected the monitor to track %d CPUs; got %d", exp, got)
	}
	if exp, got := uintptr(256), ctx.Arena().MaxFrames(); got != exp {
		t.Fatalf("expected metadata for %d frames; got %d", exp, got)
	}

	var reserved int
	memmap.Visit(ctx.MemoryMap(), func(region *memmap.MemoryRegion) bool {
		if region.Type == memmap.RegionReserved {
			reserved++
		}
		return true
	})
	if reserved != 1 {
		t.Fatalf("expected the normalized map to keep 1 reserved region; got %d", reserved)
	}
}

func TestInitWithOverlappingBootRegions(t *testing.T) {
	backing := make([]byte, 0x100000)
	mem.SetLinearOffset(uintptr(unsafe.Pointer(&backing[0])))
	t.Cleanup(func() {
		mem.SetLinearOffset(0)
		_ = backing
	})

	// Bootloaders may report overlapping entries, even of the same type.
	// The normalized map must not hand any frame to the allocator twice.
	ctx, err := Init([]memmap.MemoryRegion{
		{Base: 0x0, Size: 0x80000, Type: memmap.RegionUsable},
		{Base: 0x40000, Size: 0xc0000, Type: memmap.RegionUsable},
	}, 1)
	if err != nil {
		t.Fatal(err)
	}

	// 256 usable frames minus the metadata table and buddy bitmap frames.
	if exp, got := uintptr(254), ctx.TotalPages(); got != exp {
		t.Fatalf("expected %d total pages; got %d", exp, got)
	}
}

func TestInitDefaultsToEnumeratedCPUCount(t *testing.T) {
	ctx, _ := newTestContext(t, 0)
	if exp, got := 1, ctx.Monitor().NumCPUs(); got != exp {
		t.Fatalf("expected the monitor to default to %d CPU; got %d", exp, got)
	}
}

func TestInitWithoutUsableMemory(t *testing.T) {
	_, err := Init([]memmap.MemoryRegion{
		{Base: 0x100000, Size: 0x1000, Type: memmap.RegionReserved},
	}, 1)
	if err != ErrNoUsableMemory {
		t.Fatalf("expected error %v; got %v", ErrNoUsableMemory, err)
	}
}

func TestContextAllocationRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t, 1)
	freeBefore := ctx.FreePages()

	page, err := ctx.AllocateSingle(pmm.NewAllocOptions(1))
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := freeBefore-1, ctx.FreePages(); got != exp {
		t.Fatalf("expected %d free pages after the allocation; got %d", exp, got)
	}

	payload := []byte("kernel payload")
	if err := page.WriteBytes(64, payload); err != nil {
		t.Fatal(err)
	}
	readBuf := make([]byte, len(payload))
	if err := page.ReadBytes(64, readBuf); err != nil {
		t.Fatal(err)
	}
	if string(readBuf) != string(payload) {
		t.Fatalf("expected to read back %q; got %q", payload, readBuf)
	}

	page.Release()
	if exp, got := freeBefore, ctx.FreePages(); got != exp {
		t.Fatalf("expected %d free pages after the release; got %d", exp, got)
	}
}

func TestContextScatteredAllocationConservesFrames(t *testing.T) {
	ctx, _ := newTestContext(t, 1)
	freeBefore := ctx.FreePages()

	pages, err := ctx.Allocate(pmm.NewAllocOptions(10))
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := freeBefore-10, ctx.FreePages(); got != exp {
		t.Fatalf("expected %d free pages while the vector is held; got %d", exp, got)
	}

	pmm.ReleaseAll(pages)
	if exp, got := freeBefore, ctx.FreePages(); got != exp {
		t.Fatalf("expected %d free pages after releasing the vector; got %d", exp, got)
	}
}

func TestContextContiguousAllocation(t *testing.T) {
	ctx, backing := newTestContext(t, 1)
	for i := range backing[:0x100000] {
		backing[i] = 0xff
	}

	seg, err := ctx.AllocateContiguous(pmm.NewAllocOptions(8).Contiguous(true))
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := uint32(8), seg.NumFrames(); got != exp {
		t.Fatalf("expected a %d frame run; got %d", exp, got)
	}

	// Contiguous allocations are zero-filled by default.
	base := uintptr(seg.StartPaddr())
	for i := uintptr(0); i < seg.Limit(); i++ {
		if backing[base+i] != 0 {
			t.Fatalf("expected byte %d of the segment to be zeroed; got 0x%x", i, backing[base+i])
		}
	}

	seg.Release()
}

func TestContextIoMemRequest(t *testing.T) {
	ctx, backing := newTestContext(t, 1)

	handle, err := ctx.RequestIoMem(0x100000, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := handle.WriteUint8(0x10, 0x42); err != nil {
		t.Fatal(err)
	}
	if backing[0x100010] != 0x42 {
		t.Fatalf("expected the register write to land in device memory; got 0x%x", backing[0x100010])
	}

	// RAM handed to the frame allocator is never device memory.
	if _, err := ctx.RequestIoMem(0x2000, 0x100); err == nil {
		t.Fatal("expected a request for usable ram to fail")
	}
}

func TestContextRcuReclamation(t *testing.T) {
	ctx, _ := newTestContext(t, 2)

	type routingTable struct{ version int }

	released := 0
	cell := sync.NewRcuFunc(ctx.Monitor(), &routingTable{version: 1}, func(*routingTable) {
		released++
	})

	guard := cell.Get()
	cell.Replace(&routingTable{version: 2}).Delay()

	// The old version stays readable through the guard until every CPU
	// passes a quiescent state.
	if exp, got := 1, guard.Value().version; got != exp {
		t.Fatalf("expected the guard to still see version %d; got %d", exp, got)
	}

	ctx.PassQuiescentState(0)
	if released != 0 {
		t.Fatal("value reclaimed before every CPU reported a quiescent state")
	}

	ctx.PassQuiescentState(1)
	if exp, got := 1, released; got != exp {
		t.Fatalf("expected the old value to be reclaimed exactly once; got %d reclamations", got)
	}
	if exp, got := 2, cell.Get().Value().version; got != exp {
		t.Fatalf("expected readers to see version %d; got %d", exp, got)
	}
}
