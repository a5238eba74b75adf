package memmap

import (
	"testing"

	"osmem/kernel/mem"
)

func TestNormalizeSortsAndMerges(t *testing.T) {
	regions := []MemoryRegion{
		{Base: 0x200000, Size: 0x100000, Type: RegionUsable},
		{Base: 0x100000, Size: 0x100000, Type: RegionUsable},
		{Base: 0x0, Size: 0x1000, Type: RegionReserved},
	}

	out := Normalize(regions)

	if exp, got := 2, len(out); got != exp {
		t.Fatalf("expected %d normalized regions; got %d: %v", exp, got, out)
	}

	if out[0].Type != RegionReserved || out[0].Base != 0 {
		t.Fatalf("expected the reserved region first; got %v", out[0])
	}

	if exp := (MemoryRegion{Base: 0x100000, Size: 0x200000, Type: RegionUsable}); out[1] != exp {
		t.Fatalf("expected adjacent usable regions to merge into %v; got %v", exp, out[1])
	}
}

func TestNormalizeCarvesNonUsableClaims(t *testing.T) {
	regions := []MemoryRegion{
		{Base: 0x100000, Size: 0x300000, Type: RegionUsable},
		{Base: 0x200000, Size: 0x100000, Type: RegionKernel},
	}

	out := Normalize(regions)

	exp := []MemoryRegion{
		{Base: 0x100000, Size: 0x100000, Type: RegionUsable},
		{Base: 0x200000, Size: 0x100000, Type: RegionKernel},
		{Base: 0x300000, Size: 0x100000, Type: RegionUsable},
	}

	if len(out) != len(exp) {
		t.Fatalf("expected %d regions; got %d: %v", len(exp), len(out), out)
	}

	for i := range exp {
		if out[i] != exp[i] {
			t.Errorf("[region %d] expected %v; got %v", i, exp[i], out[i])
		}
	}

	// Post-condition: sorted and pairwise disjoint.
	for i := 1; i < len(out); i++ {
		if out[i].Base < out[i-1].End() {
			t.Errorf("regions %d and %d overlap: %v, %v", i-1, i, out[i-1], out[i])
		}
	}
}

func TestNormalizeResolvesSameTypeOverlaps(t *testing.T) {
	specs := []struct {
		descr string
		in    []MemoryRegion
		exp   []MemoryRegion
	}{
		{
			"overlapping usable entries",
			[]MemoryRegion{
				{Base: 0x0, Size: 0x2000, Type: RegionUsable},
				{Base: 0x1000, Size: 0x2000, Type: RegionUsable},
			},
			[]MemoryRegion{
				{Base: 0x0, Size: 0x3000, Type: RegionUsable},
			},
		},
		{
			"overlapping reserved entries",
			[]MemoryRegion{
				{Base: 0x1000, Size: 0x3000, Type: RegionReserved},
				{Base: 0x2000, Size: 0x1000, Type: RegionReserved},
			},
			[]MemoryRegion{
				{Base: 0x1000, Size: 0x3000, Type: RegionReserved},
			},
		},
		{
			"mixed overlap with a gap",
			[]MemoryRegion{
				{Base: 0x0, Size: 0x3000, Type: RegionUsable},
				{Base: 0x1000, Size: 0x3000, Type: RegionUsable},
				{Base: 0x2000, Size: 0x1000, Type: RegionReserved},
				{Base: 0x5000, Size: 0x1000, Type: RegionUsable},
			},
			[]MemoryRegion{
				{Base: 0x0, Size: 0x2000, Type: RegionUsable},
				{Base: 0x2000, Size: 0x1000, Type: RegionReserved},
				{Base: 0x3000, Size: 0x1000, Type: RegionUsable},
				{Base: 0x5000, Size: 0x1000, Type: RegionUsable},
			},
		},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			out := Normalize(spec.in)

			if len(out) != len(spec.exp) {
				t.Fatalf("expected %d regions; got %d: %v", len(spec.exp), len(out), out)
			}

			for i := range spec.exp {
				if out[i] != spec.exp[i] {
					t.Errorf("[region %d] expected %v; got %v", i, spec.exp[i], out[i])
				}
			}

			for i := 1; i < len(out); i++ {
				if out[i].Base < out[i-1].End() {
					t.Errorf("regions %d and %d overlap: %v, %v", i-1, i, out[i-1], out[i])
				}
			}
		})
	}
}

func TestNormalizeDropsEmptyRegions(t *testing.T) {
	out := Normalize([]MemoryRegion{
		{Base: 0x1000, Size: 0, Type: RegionUsable},
		{Base: 0x2000, Size: 0x1000, Type: RegionUsable},
	})

	if exp, got := 1, len(out); got != exp {
		t.Fatalf("expected %d region; got %d", exp, got)
	}
}

func TestVisitStopsEarly(t *testing.T) {
	regions := []MemoryRegion{
		{Base: 0x0, Size: 0x1000, Type: RegionUsable},
		{Base: 0x1000, Size: 0x1000, Type: RegionUsable},
		{Base: 0x2000, Size: 0x1000, Type: RegionUsable},
	}

	visited := 0
	Visit(regions, func(r *MemoryRegion) bool {
		visited++
		return visited < 2
	})

	if exp := 2; visited != exp {
		t.Fatalf("expected visitor to run %d times; got %d", exp, visited)
	}
}

func TestRegionAccessors(t *testing.T) {
	r := MemoryRegion{Base: 0x100000, Size: 0x1000, Type: RegionFramebuffer}

	if exp, got := mem.Paddr(0x101000), r.End(); got != exp {
		t.Fatalf("expected End() to return 0x%x; got 0x%x", exp, got)
	}

	if r.IsEmpty() {
		t.Fatal("expected a non-zero sized region to not be empty")
	}

	for typ := RegionUsable; typ <= RegionBadMemory; typ++ {
		if typ.String() == "unknown" {
			t.Errorf("expected a description for region type %d", typ)
		}
	}

	if exp, got := "unknown", RegionType(200).String(); got != exp {
		t.Fatalf("expected out-of-range region type to map to %q; got %q", exp, got)
	}
}
