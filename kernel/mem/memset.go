package mem

import "unsafe"

// Memset sets size bytes at the given virtual address to the supplied value.
// Instead of a plain byte loop it performs log2(size) copy calls, which is a
// good fit for the page-aligned, power-of-two sized blocks the allocators
// deal in.
func Memset(addr Vaddr, value byte, size Size) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(size))

	target[0] = value
	for index := Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
