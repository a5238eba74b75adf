package mem

import (
	"testing"
	"unsafe"
)

func TestSizePages(t *testing.T) {
	specs := []struct {
		input Size
		exp   uint32
	}{
		{0, 0},
		{1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{10 * PageSize, 10},
	}

	for specIndex, spec := range specs {
		if got := spec.input.Pages(); got != spec.exp {
			t.Errorf("[spec %d] expected Pages() to return %d; got %d", specIndex, spec.exp, got)
		}
	}
}

func TestSizeOrder(t *testing.T) {
	specs := []struct {
		input Size
		exp   PageOrder
	}{
		{0, 0},
		{PageSize, 0},
		{PageSize + 1, 1},
		{2 * PageSize, 1},
		{3 * PageSize, 2},
		{64 * PageSize, 6},
	}

	for specIndex, spec := range specs {
		if got := spec.input.Order(); got != spec.exp {
			t.Errorf("[spec %d] expected Order() to return %d; got %d", specIndex, spec.exp, got)
		}
	}
}

func TestAlignHelpers(t *testing.T) {
	if exp, got := uintptr(0x2000), AlignUp(0x1001, 0x1000); got != exp {
		t.Fatalf("expected AlignUp to return 0x%x; got 0x%x", exp, got)
	}

	if exp, got := uintptr(0x1000), AlignUp(0x1000, 0x1000); got != exp {
		t.Fatalf("expected AlignUp of an aligned value to be a no-op; got 0x%x", got)
	}

	if exp, got := uintptr(0x1000), AlignDown(0x1fff, 0x1000); got != exp {
		t.Fatalf("expected AlignDown to return 0x%x; got 0x%x", exp, got)
	}
}

func TestLinearMappingRoundTrip(t *testing.T) {
	defer SetLinearOffset(0)

	// Before the boot code registers the linear-map base the mapping
	// defaults to identity.
	if exp, got := Vaddr(0x1000), PaddrToVaddr(Paddr(0x1000)); got != exp {
		t.Fatalf("expected the unregistered mapping to be identity; got 0x%x", got)
	}

	SetLinearOffset(0xffff800000000000)

	paddr := Paddr(0x1234000)
	vaddr := PaddrToVaddr(paddr)

	if exp := Vaddr(0xffff800001234000); vaddr != exp {
		t.Fatalf("expected PaddrToVaddr to return 0x%x; got 0x%x", exp, vaddr)
	}

	if got := VaddrToPaddr(vaddr); got != paddr {
		t.Fatalf("expected VaddrToPaddr round trip to return 0x%x; got 0x%x", paddr, got)
	}
}

func TestMemset(t *testing.T) {
	for _, size := range []Size{0, 1, 13, 256, 4096} {
		buf := make([]byte, 4096)
		for i := range buf {
			buf[i] = 0xf0
		}

		if size > 0 {
			Memset(Vaddr(uintptr(unsafe.Pointer(&buf[0]))), 0x42, size)
		} else {
			Memset(0, 0x42, size)
		}

		for i := Size(0); i < 4096; i++ {
			exp := byte(0xf0)
			if i < size {
				exp = 0x42
			}
			if buf[i] != exp {
				t.Fatalf("[size %d] expected byte %d to be 0x%x; got 0x%x", size, i, exp, buf[i])
			}
		}
	}
}
