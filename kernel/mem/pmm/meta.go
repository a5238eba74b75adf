package pmm

import (
	"sync/atomic"

	"osmem/kernel/sync"
)

// PageKind is the runtime discriminant describing what flavor of data a
// physical page holds. Every page starts out as KindFree; the only legal way
// to move a page out of KindFree is an allocator-mediated claim through
// Arena.PageFromUnused or Arena.SegmentFromUnused, and the only way back is
// the release of its last owning handle.
type PageKind uint32

// The built-in page kinds. Additional kinds can be registered with
// RegisterPageKind.
const (
	// KindFree marks a page that has no owner.
	KindFree PageKind = iota

	// KindFrame marks a generic kernel-owned page of plain bytes.
	KindFrame

	// KindPageTable marks a page holding a hardware page table node.
	KindPageTable
)

var (
	kindLock  sync.Spinlock
	kindNames = []string{"free", "frame", "page table"}
)

// RegisterPageKind registers a caller-defined page kind under the given name
// and returns its discriminant. It is intended to be called during subsystem
// initialization.
func RegisterPageKind(name string) PageKind {
	kindLock.Acquire()
	kind := PageKind(len(kindNames))
	kindNames = append(kindNames, name)
	kindLock.Release()
	return kind
}

// String implements fmt.Stringer for PageKind.
func (k PageKind) String() string {
	kindLock.Acquire()
	defer kindLock.Release()
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// refUnused is the reference-count sentinel marking a page with no owner.
// A claim transitions the count refUnused -> 0 -> 1; the transient 0 state
// means a claim or release is in flight and the metadata must not be
// trusted by other CPUs.
const refUnused = ^uint32(0)

// MetaSlot holds the metadata record for one physical page frame. One slot
// exists for every frame in the system, in a side array indexed by frame
// number; slots are created when the arena is initialized and live for as
// long as the physical page exists.
type MetaSlot struct {
	refCount atomic.Uint32
	kind     atomic.Uint32
}

// reset marks the slot as unowned. Only the arena constructor and the
// final-release path may call it.
func (s *MetaSlot) reset() {
	s.kind.Store(uint32(KindFree))
	s.refCount.Store(refUnused)
}
