// Package mem provides the base types and constants for describing physical
// and virtual memory: addresses, sizes, page geometry and the linear mapping
// between physical pages and kernel-virtual addresses.
package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when we
	// need to convert a physical address to a page frame number (shift
	// right by PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// MaxPageOrder defines the maximum page order that can be requested
	// from a page-based allocator. The largest allocatable block spans
	// PageSize << MaxPageOrder bytes.
	MaxPageOrder = PageOrder(10)
)

// Paddr describes a physical memory address.
type Paddr uintptr

// Vaddr describes a kernel-virtual memory address.
type Vaddr uintptr

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages required for storing this size.
func (s Size) Pages() uint32 {
	pageSizeMinus1 := PageSize - 1
	return uint32((s + pageSizeMinus1) &^ pageSizeMinus1 >> PageShift)
}

// Order returns the smallest PageOrder suitable for storing a block of this
// size. Depending on the size, Order may return a page order greater than
// MaxPageOrder.
func (s Size) Order() PageOrder {
	var order PageOrder
	for PageSize<<order < s {
		order++
	}
	return order
}

// PageOrder represents a power-of-two multiple of the base page size and is
// used as an argument to page-based memory allocators.
//
// PageOrder(0) refers to a block with size PageSize << 0
// PageOrder(1) refers to a block with size PageSize << 1
// ...
type PageOrder uint8

// AlignUp rounds v up to the nearest multiple of align, which must be a
// power of two.
func AlignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown rounds v down to the nearest multiple of align, which must be a
// power of two.
func AlignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}
