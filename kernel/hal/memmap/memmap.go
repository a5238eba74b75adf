// Package memmap models the physical memory map that boot-time collaborators
// (multiboot, EFI or the device tree) hand over to the kernel. The map is
// produced once during early boot, normalized and then consumed by the frame
// allocator; it is immutable afterwards.
package memmap

import (
	"sort"

	"osmem/kernel/mem"
)

// RegionType describes the type of a physical memory region. Higher values
// take precedence when overlapping regions are normalized: a range claimed
// both as usable RAM and as anything else is not handed to the allocator.
type RegionType uint8

// The list of supported memory region types.
const (
	// RegionUsable memory is directly available to the frame allocator.
	RegionUsable RegionType = iota

	// RegionReclaimable memory was used during the boot phase and can be
	// reclaimed by the kernel after initialization.
	RegionReclaimable

	// RegionFramebuffer memory is mapped to the boot framebuffer.
	RegionFramebuffer

	// RegionModule memory contains boot modules (e.g. an initrd).
	RegionModule

	// RegionKernel memory contains the loaded kernel sections.
	RegionKernel

	// RegionReserved memory is reserved by the BIOS or the bootloader and
	// must not be touched.
	RegionReserved

	// RegionBadMemory points to memory reported as defective.
	RegionBadMemory
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case RegionUsable:
		return "usable"
	case RegionReclaimable:
		return "reclaimable"
	case RegionFramebuffer:
		return "framebuffer"
	case RegionModule:
		return "module"
	case RegionKernel:
		return "kernel"
	case RegionReserved:
		return "reserved"
	case RegionBadMemory:
		return "bad memory"
	}
	return "unknown"
}

// MemoryRegion describes one contiguous physical address range discovered at
// boot together with its type.
type MemoryRegion struct {
	// Base is the physical address of the first byte in the region.
	Base mem.Paddr

	// Size is the length of the region in bytes.
	Size uintptr

	// Type describes how the region may be used.
	Type RegionType
}

// End returns the physical address one past the last byte of the region.
func (r *MemoryRegion) End() mem.Paddr {
	return r.Base + mem.Paddr(r.Size)
}

// IsEmpty returns true if the region covers no bytes.
func (r *MemoryRegion) IsEmpty() bool {
	return r.Size == 0
}

// Visitor is invoked by Visit for each memory region. Returning false stops
// the iteration.
type Visitor func(region *MemoryRegion) bool

// Visit invokes the supplied visitor for each region in the list, stopping
// early if the visitor returns false.
func Visit(regions []MemoryRegion, visitor Visitor) {
	for i := range regions {
		if !visitor(&regions[i]) {
			return
		}
	}
}

// Normalize turns the raw, possibly-overlapping region list reported by the
// bootloader into a sorted, non-overlapping list. Bootloaders do not
// guarantee disjoint entries, not even for entries of the same type, so the
// list is resolved with a boundary sweep: each elementary interval between
// two region boundaries is assigned the most restrictive type claimed for
// it. Adjacent regions of the same type are merged and empty regions are
// dropped.
//
// The returned list satisfies the allocator's input invariant: regions are
// sorted by base address and pairwise disjoint.
func Normalize(regions []MemoryRegion) []MemoryRegion {
	var live []MemoryRegion
	for _, r := range regions {
		if !r.IsEmpty() {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return nil
	}

	// Every overlap change happens at a region boundary, so the type of an
	// elementary interval between two consecutive boundaries is constant.
	bounds := make([]mem.Paddr, 0, 2*len(live))
	for i := range live {
		bounds = append(bounds, live[i].Base, live[i].End())
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var out []MemoryRegion
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]
		if lo == hi {
			continue
		}

		claimed := false
		var regionType RegionType
		for j := range live {
			if live[j].Base <= lo && lo < live[j].End() && (!claimed || live[j].Type > regionType) {
				claimed = true
				regionType = live[j].Type
			}
		}
		if !claimed {
			continue
		}

		if last := len(out) - 1; last >= 0 && out[last].Type == regionType && out[last].End() == lo {
			out[last].Size += uintptr(hi - lo)
			continue
		}
		out = append(out, MemoryRegion{Base: lo, Size: uintptr(hi - lo), Type: regionType})
	}

	return out
}
