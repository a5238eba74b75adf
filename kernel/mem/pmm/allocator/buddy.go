// Package allocator implements the physical frame allocators: the buddy
// allocator that manages the global free pool after boot, the spinlocked
// wrapper that serializes access to it, and the early boot allocator used
// before the buddy structures exist.
package allocator

import (
	"math/bits"

	"osmem/kernel/mem"
	"osmem/kernel/mem/pmm"
)

// numOrders is the number of block orders the buddy allocator tracks. The
// largest block spans 1 << MaxPageOrder frames.
const numOrders = int(mem.MaxPageOrder) + 1

// BuddyAllocator tracks free physical frame ranges in power-of-two sized
// blocks. A block of order k spans 1<<k frames and is naturally aligned to
// its size. For each order, free blocks are tracked by a bitmap stored as a
// []uint64: examining 64 blocks at a time with bitwise operations lets the
// allocator skip fully-reserved chunks quickly and only scan individual
// bits when a word is known to contain a free block.
//
// BuddyAllocator performs no locking; concurrent callers go through
// LockedAllocator.
type BuddyAllocator struct {
	// maxFrames bounds the frame index space [0, maxFrames).
	maxFrames uintptr

	// freeCount stores the number of free blocks for each order so that
	// allocation can skip exhausted orders without scanning bitmaps.
	freeCount [numOrders]uintptr

	// freeBitmap stores one bit per block for each order; a set bit
	// marks the block free.
	freeBitmap [numOrders][]uint64

	// totalPages tracks the number of frames handed to the allocator via
	// AddFrames.
	totalPages uintptr
}

// BitmapWords returns the number of uint64 words of backing storage a buddy
// allocator over maxFrames frames requires for its bitmaps. The memory
// context reserves physical frames for this storage through the boot
// allocator; tests pass a plain Go slice.
func BitmapWords(maxFrames uintptr) uintptr {
	var words uintptr
	for order := 0; order < numOrders; order++ {
		words += wordsForOrder(maxFrames, order)
	}
	return words
}

func wordsForOrder(maxFrames uintptr, order int) uintptr {
	blocks := (maxFrames + (1 << order) - 1) >> order
	return (blocks + 63) >> 6
}

// NewBuddyAllocator creates a buddy allocator over the frame index space
// [0, maxFrames) with all frames initially reserved. storage must hold at
// least BitmapWords(maxFrames) zeroed words; the allocator carves its
// per-order bitmaps out of it.
func NewBuddyAllocator(maxFrames uintptr, storage []uint64) *BuddyAllocator {
	if uintptr(len(storage)) < BitmapWords(maxFrames) {
		panic("allocator: bitmap storage is too small")
	}

	alloc := &BuddyAllocator{maxFrames: maxFrames}

	var offset uintptr
	for order := 0; order < numOrders; order++ {
		words := wordsForOrder(maxFrames, order)
		alloc.freeBitmap[order] = storage[offset : offset+words]
		offset += words
	}

	return alloc
}

// TotalPages returns the total number of frames registered with AddFrames.
func (alloc *BuddyAllocator) TotalPages() uintptr {
	return alloc.totalPages
}

// FreePages returns the number of frames currently free.
func (alloc *BuddyAllocator) FreePages() uintptr {
	var free uintptr
	for order := 0; order < numOrders; order++ {
		free += alloc.freeCount[order] << order
	}
	return free
}

// AddFrames registers a contiguous range of frames as free. It is called
// only during initialization, once per usable memory region; registering a
// range that overlaps a previously added one corrupts the free pool and
// panics.
func (alloc *BuddyAllocator) AddFrames(start pmm.Frame, count uint32) {
	alloc.totalPages += uintptr(count)
	alloc.freeRange(start, uintptr(count))
}

// Alloc reserves count contiguous frames and returns the first one. It
// returns ok == false if no sufficiently large free run exists; exhaustion
// is never a panic.
func (alloc *BuddyAllocator) Alloc(count uint32) (pmm.Frame, bool) {
	return alloc.AllocAligned(count, 1)
}

// AllocAligned behaves like Alloc but additionally aligns the returned
// frame to alignFrames frames, which must be a power of two. It is used for
// naturally-aligned super-page allocations such as page-table levels.
func (alloc *BuddyAllocator) AllocAligned(count, alignFrames uint32) (pmm.Frame, bool) {
	if count == 0 {
		panic("allocator: allocation of zero frames")
	}
	if alignFrames == 0 || alignFrames&(alignFrames-1) != 0 {
		panic("allocator: alignment must be a power of two")
	}

	// A block whose order covers both the requested count and alignment
	// is naturally aligned to the larger of the two.
	order := orderFor(uintptr(count))
	if alignOrder := orderFor(uintptr(alignFrames)); alignOrder > order {
		order = alignOrder
	}
	if order >= numOrders {
		return pmm.InvalidFrame, false
	}

	start, ok := alloc.takeBlock(order)
	if !ok {
		return pmm.InvalidFrame, false
	}

	// Exact allocation: hand back the tail beyond the requested count.
	if extra := (uintptr(1) << order) - uintptr(count); extra != 0 {
		alloc.freeRange(start+pmm.Frame(count), extra)
	}

	return start, true
}

// Dealloc returns a previously allocated, exactly-matching frame range to
// the free pool, coalescing buddy blocks as far as possible. Freeing a
// range that is already free or was never registered panics: that is a
// double free, which indicates corrupted bookkeeping that cannot be safely
// recovered from.
func (alloc *BuddyAllocator) Dealloc(start pmm.Frame, count uint32) {
	if count == 0 {
		panic("allocator: deallocation of zero frames")
	}
	alloc.freeRange(start, uintptr(count))
}

// takeBlock removes a free block of at least the given order from the free
// pool, splitting a larger block if needed, and returns its first frame.
func (alloc *BuddyAllocator) takeBlock(order int) (pmm.Frame, bool) {
	avail := order
	for ; avail < numOrders && alloc.freeCount[avail] == 0; avail++ {
	}
	if avail == numOrders {
		return 0, false
	}

	block := alloc.findFreeBlock(avail)
	alloc.clearFree(avail, block)

	// Split the block down to the requested order, returning the upper
	// buddy half at each step.
	for avail > order {
		avail--
		block <<= 1
		alloc.setFree(avail, block^1)
	}

	return pmm.Frame(block << order), true
}

// freeRange marks an arbitrary frame range free by decomposing it into
// maximal naturally-aligned power-of-two blocks.
func (alloc *BuddyAllocator) freeRange(start pmm.Frame, count uintptr) {
	if uintptr(start)+count > alloc.maxFrames || uintptr(start)+count < uintptr(start) {
		panic("allocator: frame range outside any registered region")
	}

	for count > 0 {
		// The largest block that fits in count and whose natural
		// alignment matches start.
		order := bits.Len(uint(count)) - 1
		if order >= numOrders {
			order = numOrders - 1
		}
		for order > 0 && uintptr(start)&(1<<order-1) != 0 {
			order--
		}

		alloc.freeBlock(order, uintptr(start)>>order)
		start += pmm.Frame(1) << order
		count -= 1 << order
	}
}

// freeBlock marks the block free and merges it with its buddy repeatedly
// until the buddy is not free or the maximum order is reached.
func (alloc *BuddyAllocator) freeBlock(order int, block uintptr) {
	if alloc.isFree(order, block) {
		panic("allocator: double free of a frame block")
	}

	for order < numOrders-1 {
		buddy := block ^ 1
		if !alloc.isFree(order, buddy) {
			break
		}
		alloc.clearFree(order, buddy)
		block >>= 1
		order++
	}

	alloc.setFree(order, block)
}

// findFreeBlock returns the index of the first free block at the given
// order. The caller must have checked that one exists.
func (alloc *BuddyAllocator) findFreeBlock(order int) uintptr {
	for wordIndex, word := range alloc.freeBitmap[order] {
		if word != 0 {
			return uintptr(wordIndex<<6 + bits.TrailingZeros64(word))
		}
	}
	panic("allocator: free count and bitmap out of sync")
}

func (alloc *BuddyAllocator) isFree(order int, block uintptr) bool {
	return alloc.freeBitmap[order][block>>6]&(1<<(block&63)) != 0
}

func (alloc *BuddyAllocator) setFree(order int, block uintptr) {
	alloc.freeBitmap[order][block>>6] |= 1 << (block & 63)
	alloc.freeCount[order]++
}

func (alloc *BuddyAllocator) clearFree(order int, block uintptr) {
	alloc.freeBitmap[order][block>>6] &^= 1 << (block & 63)
	alloc.freeCount[order]--
}

// orderFor returns the smallest order whose block size covers count frames.
func orderFor(count uintptr) int {
	order := 0
	for uintptr(1)<<order < count {
		order++
	}
	return order
}
