package sync

import "sync/atomic"

// Rcu wraps an atomically-swappable pointer to a value of type T, allowing
// any number of wait-free concurrent readers while a writer replaces the
// pointer and defers reclamation of the previous value until no reader can
// still be using it.
//
// Rcu does not arbitrate between concurrent writers; if mutual exclusion
// between writers is required, callers must serialize Replace calls with
// their own lock. Each Replace still reclaims exactly the value it swapped
// out.
type Rcu[T any] struct {
	monitor *Monitor
	ptr     atomic.Pointer[T]

	// release is invoked for an old value once its grace period elapses.
	// A nil release simply drops the last reference to the value.
	release func(*T)
}

// NewRcu creates an RCU cell holding v, reclaimed through the given monitor.
func NewRcu[T any](monitor *Monitor, v *T) *Rcu[T] {
	return NewRcuFunc(monitor, v, nil)
}

// NewRcuFunc behaves like NewRcu but additionally registers a release hook
// that runs when a replaced value is finally reclaimed. Kernel users return
// backing memory in the hook; tests use it to observe reclamation.
func NewRcuFunc[T any](monitor *Monitor, v *T, release func(*T)) *Rcu[T] {
	r := &Rcu[T]{
		monitor: monitor,
		release: release,
	}
	r.ptr.Store(v)
	return r
}

// ReadGuard borrows the value an Rcu cell held at the time of the Get call.
// The borrow stays valid regardless of subsequent Replace calls, but holders
// must keep it only for a bounded, short duration and must not retain it
// across a quiescent-state report on the same CPU.
type ReadGuard[T any] struct {
	v *T
}

// Value returns the borrowed value.
func (g ReadGuard[T]) Value() *T {
	return g.v
}

// Get returns a read guard borrowing the current value. Get is wait-free
// and safe to call concurrently with any number of readers and writers.
func (r *Rcu[T]) Get() ReadGuard[T] {
	return ReadGuard[T]{v: r.ptr.Load()}
}

// Replace atomically swaps in v and returns a Reclaimer wrapping the old
// value. The old value is not freed by this call: the caller must consume
// the reclaimer through either Delay (non-blocking, deferred) or ReclaimNow
// (blocks until a grace period elapses).
func (r *Rcu[T]) Replace(v *T) *Reclaimer[T] {
	old := r.ptr.Swap(v)
	return &Reclaimer[T]{
		rcu: r,
		old: old,
	}
}

// Reclaimer owns the obligation to reclaim a value displaced by Replace
// once a full grace period has elapsed. A reclaimer must be consumed
// exactly once, through Delay or ReclaimNow.
type Reclaimer[T any] struct {
	rcu      *Rcu[T]
	old      *T
	consumed atomic.Bool
}

// Delay schedules the reclamation to run after the next full grace period
// and returns immediately without blocking.
func (rc *Reclaimer[T]) Delay() {
	rc.consume()
	rcu, old := rc.rcu, rc.old
	rc.old = nil
	rcu.monitor.Defer(func() {
		if rcu.release != nil {
			rcu.release(old)
		}
	})
}

// ReclaimNow blocks the calling task until a full grace period has elapsed
// and then reclaims the old value synchronously. It must not be called from
// a context where blocking is illegal, such as inside another spinlock's
// critical section or with interrupts disabled.
func (rc *Reclaimer[T]) ReclaimNow() {
	rc.consume()
	rcu, old := rc.rcu, rc.old
	rc.old = nil

	elapsed := make(chan struct{})
	rcu.monitor.Defer(func() {
		close(elapsed)
	})
	<-elapsed

	if rcu.release != nil {
		rcu.release(old)
	}
}

func (rc *Reclaimer[T]) consume() {
	if rc.consumed.Swap(true) {
		panic("sync: RCU reclaimer consumed more than once")
	}
}
