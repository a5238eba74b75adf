// Package kmain contains the portable kernel entry point invoked by the
// arch-specific boot code.
package kmain

import (
	"osmem/kernel"
	"osmem/kernel/hal/multiboot"
	"osmem/kernel/kfmt"
	"osmem/kernel/mem"
	"osmem/kernel/mm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT, a minimal g0 struct and the physical memory
// linear mapping.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader and the virtual base of the linear physical memory mapping
// that it established.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, linearMapBase uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)
	mem.SetLinearOffset(linearMapBase)

	ctx, err := mm.Init(multiboot.BootMemoryMap(), 0)
	if err != nil {
		kernel.Panic(err)
	}

	kfmt.Printf("[kmain] memory manager online: %d/%d pages free\n",
		uint64(ctx.FreePages()), uint64(ctx.TotalPages()))

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}
