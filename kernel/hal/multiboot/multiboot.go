// Package multiboot parses the multiboot2 info payload handed over by the
// bootloader and converts it into the kernel's memory region list. The
// payload is the kernel's only source for the physical memory map and the
// framebuffer location.
package multiboot

import (
	"unsafe"

	"osmem/kernel/hal/memmap"
	"osmem/kernel/mem"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// tagHeader describes the header that precedes each tag. Tags start at
// 8-byte aligned addresses; size excludes the alignment padding.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a bootloader memory map entry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info
	// that can be reused by the OS once the tables have been consumed.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemoryMapEntry describes one memory region entry as reported by the
// bootloader.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

var infoData uintptr

// MemRegionVisitor is invoked by VisitMemRegions for each memory region
// provided by the bootloader. Returning false stops the iteration.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr registers the physical location of the multiboot info payload.
// It must be invoked by the boot code before any other function in this
// package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// VisitMemRegions invokes the supplied visitor for each memory region
// defined by the multiboot memory map tag. Entries with a type outside the
// specified range are reported as reserved.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	for curPtr != endPtr {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		if entry.Type == 0 || entry.Type > memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// GetFramebufferInfo returns information about the framebuffer initialized
// by the bootloader, or nil if no framebuffer tag is present.
func GetFramebufferInfo() *FramebufferInfo {
	var info *FramebufferInfo

	curPtr, size := findTagByType(tagFramebufferInfo)
	if size != 0 {
		info = (*FramebufferInfo)(unsafe.Pointer(curPtr))
	}

	return info
}

// regionType maps a bootloader memory entry type to the kernel's region
// taxonomy.
func regionType(t MemoryEntryType) memmap.RegionType {
	switch t {
	case MemAvailable:
		return memmap.RegionUsable
	case MemAcpiReclaimable:
		return memmap.RegionReclaimable
	default:
		return memmap.RegionReserved
	}
}

// BootMemoryMap converts the bootloader memory map tag, plus the
// framebuffer tag when present, into the kernel's raw region list. The
// caller normalizes the result before handing it to the allocator.
func BootMemoryMap() []memmap.MemoryRegion {
	var regions []memmap.MemoryRegion

	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		regions = append(regions, memmap.MemoryRegion{
			Base: mem.Paddr(entry.PhysAddress),
			Size: uintptr(entry.Length),
			Type: regionType(entry.Type),
		})
		return true
	})

	if fb := GetFramebufferInfo(); fb != nil {
		regions = append(regions, memmap.MemoryRegion{
			Base: mem.Paddr(fb.PhysAddr),
			Size: uintptr(fb.Pitch) * uintptr(fb.Height),
			Type: memmap.RegionFramebuffer,
		})
	}

	return regions
}

// findTagByType scans the multiboot info payload for a tag of the given
// type and returns a pointer to its contents together with their length
// excluding the tag header, or (0, 0) if the tag is absent.
func findTagByType(tagType tagType) (uintptr, uint32) {
	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
