// Package cpu exposes the processor topology information that boot-time
// collaborators discover and that memory-management subsystems consume.
package cpu

// count holds the number of online CPUs. It defaults to 1 so that early
// boot code can run before the full topology has been enumerated.
var count = 1

// SetCount registers the number of online CPUs. It is invoked exactly once
// by the arch-specific boot code after CPU enumeration completes.
func SetCount(n int) {
	if n < 1 {
		panic("cpu: CPU count must be at least 1")
	}
	count = n
}

// Count returns the number of online CPUs.
func Count() int {
	return count
}
