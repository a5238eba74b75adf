package mem

// linearOffset holds the offset of the linear mapping that exposes all
// physical memory inside the kernel address space. Converting between a
// physical address and its kernel-virtual alias is plain offset arithmetic;
// no page-table walk is required.
//
// The arch boot code registers the real linear-map base once paging is up.
// Tests point the offset into a plain byte slice standing in for physical
// memory.
var linearOffset uintptr

// SetLinearOffset registers the offset of the physical-to-virtual linear
// mapping. Until it is called the offset is zero and physical addresses are
// aliased identity-mapped.
func SetLinearOffset(offset uintptr) {
	linearOffset = offset
}

// PaddrToVaddr returns the kernel-virtual address that aliases the given
// physical address through the linear mapping.
func PaddrToVaddr(paddr Paddr) Vaddr {
	return Vaddr(uintptr(paddr) + linearOffset)
}

// VaddrToPaddr returns the physical address backing a kernel-virtual address
// that lies inside the linear mapping.
func VaddrToPaddr(vaddr Vaddr) Paddr {
	return Paddr(uintptr(vaddr) - linearOffset)
}
