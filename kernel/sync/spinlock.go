// Package sync provides the synchronization primitives used by the kernel:
// spinlocks and the RCU (read-copy-update) machinery.
package sync

import (
	"runtime"
	"sync/atomic"
)

// spinsBeforeYielding defines the number of failed acquisition attempts
// after which a spinning task yields the processor to give the lock holder
// a chance to run.
const spinsBeforeYielding = 64

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	for attempt := uint32(0); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempt++ {
		if attempt%spinsBeforeYielding == spinsBeforeYielding-1 {
			runtime.Gosched()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
