// Package buddy implements the binary buddy allocator from spec.md §4.5:
// a power-of-two physical frame allocator with one authoritative bitmap
// per order plus a free-list "hint" per order that can go stale (an entry
// popped off it may already have been reclaimed by a higher-order merge,
// so every pop re-checks the bitmap before trusting it). This is a close
// port of mem/mod.rs's BuddyAllocator<const N: usize>/Buddies: Rust's
// const-generic order count N becomes a runtime depth field here, since Go
// has no const generics, and SlabBox<BuddyFreeList> becomes a freeNode
// allocated directly from a slab.Allocator (see pushFree).
package buddy

import (
	"unsafe"

	"github.com/cznic/mathutil"

	"ashkernel/internal/slab"
)

// freeNode is the buddy allocator's intrusive free-list payload: the
// offset (relative to Allocator.offset) of one free, order-sized block.
type freeNode struct {
	ptr  uintptr
	next *freeNode
}

// level holds one order's bitmap (1 bit per block, set = allocated) and
// free-list hint.
type level struct {
	bitmap     []uint64
	numBuddies uintptr
	freeHead   *freeNode
}

func (lv *level) isUnused(chunk uintptr) bool {
	return lv.bitmap[chunk>>6]&(1<<(chunk&63)) == 0
}

func (lv *level) isUsed(chunk uintptr) bool {
	return !lv.isUnused(chunk)
}

func (lv *level) setUnused(chunk uintptr) {
	lv.bitmap[chunk>>6] &^= 1 << (chunk & 63)
}

func (lv *level) setUsed(chunk uintptr) {
	lv.bitmap[chunk>>6] |= 1 << (chunk & 63)
}

// Allocator is a depth-level binary buddy allocator over a region of
// offset-relative addresses [0, baseSize*totalBaseUnits). Order 0 blocks are
// baseSize bytes; order i blocks are baseSize<<i bytes.
type Allocator struct {
	levels        []level
	freeListAlloc *slab.Allocator[freeNode]
	baseSize      uintptr
	offset        uintptr
}

// New constructs an allocator of the given depth over baseSize-sized
// order-0 blocks. bitmapBacking supplies the storage for every level's
// bitmap (sized by BitmapBytes) and freeListChunk seeds the free-list
// slab allocator. Every bit below the top order starts set and every
// top-order bit starts clear; the free lists start empty. Callers seed the
// top order's free list with SeedFree and then carve out reserved ranges
// with MarkAsUsed, mirroring mem/mod.rs's init sequence (top order
// unused-by-default, top-order free list seeded, then the
// kernel/boot-info/bitmap regions marked used).
func New(baseSize uintptr, depth int, totalBaseUnits uintptr, offset uintptr, bitmapBacking []byte, freeListChunk []byte) *Allocator {
	if depth < 1 {
		panic("buddy: depth must be at least 1")
	}

	a := &Allocator{
		levels:        make([]level, depth),
		freeListAlloc: slab.New[freeNode](freeListChunk),
		baseSize:      baseSize,
		offset:        offset,
	}

	backing := bitmapBacking
	for i := 0; i < depth; i++ {
		numBuddies := totalBaseUnits >> uint(i)
		words := (numBuddies + 63) / 64
		bytes := words * 8
		if uintptr(len(backing)) < bytes {
			panic("buddy: bitmapBacking too small for the requested depth")
		}
		a.levels[i].numBuddies = numBuddies
		a.levels[i].bitmap = bytesToWords(backing[:bytes])
		backing = backing[bytes:]

		// Every order below the top starts "used": no freestanding block
		// exists there yet, since nothing has been split down to it. The
		// top order starts "unused": before any reservation is carved out
		// with MarkAsUsed, the whole region is one free block per top-order
		// slot, matching mem/mod.rs's init fill.
		fill := ^uint64(0)
		if i == depth-1 {
			fill = 0
		}
		for j := range a.levels[i].bitmap {
			a.levels[i].bitmap[j] = fill
		}
	}

	return a
}

// bytesToWords views b (8-byte aligned, a multiple of 8 long) in place as
// a []uint64, so the bitmap lives in the caller-supplied backing memory.
func bytesToWords(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// BitmapBytes returns the total bitmap storage New needs for depth levels
// covering totalBaseUnits order-0 blocks.
func BitmapBytes(depth int, totalBaseUnits uintptr) uintptr {
	var total uintptr
	for i := 0; i < depth; i++ {
		numBuddies := totalBaseUnits >> uint(i)
		words := (numBuddies + 63) / 64
		total += words * 8
	}
	return total
}

// Depth returns the number of orders the allocator covers.
func (a *Allocator) Depth() int {
	return len(a.levels)
}

// NeedsNewChunk reports whether the free-list slab backing this allocator's
// intrusive free lists is running low, mirroring mem/mod.rs's
// buddy_alloc.free_list_alloc.needs_new_chunk() check.
func (a *Allocator) NeedsNewChunk() bool {
	return a.freeListAlloc.NeedsNewChunk()
}

// AddChunk hands chunk to the free-list slab allocator, growing the pool of
// freeNode slots available to pushFree.
func (a *Allocator) AddChunk(chunk []byte) {
	a.freeListAlloc.AddChunk(chunk)
}

// OrderForSize returns the smallest order whose block size is at least n,
// using mathutil.BitLen the way cznic-memory computes a size class from a
// requested allocation size.
func (a *Allocator) OrderForSize(n uintptr) (order int, ok bool) {
	if n <= a.baseSize {
		return 0, true
	}
	blocks := (n + a.baseSize - 1) / a.baseSize
	order = mathutil.BitLen(int(blocks) - 1)
	if order >= len(a.levels) {
		return 0, false
	}
	return order, true
}

// SeedFree pushes one free block of the given order at ptr (an
// offset-relative address) onto that order's free list and marks it
// unused in the bitmap. Used during initialization once the bitmaps have
// been marked used for reserved ranges, to hand the remainder to the
// allocator.
func (a *Allocator) SeedFree(order int, ptr uintptr) {
	lv := &a.levels[order]
	chunk := ptr / (a.baseSize << uint(order))
	lv.setUnused(chunk)
	a.pushFree(order, ptr)
}

// pushFree allocates a free-list node directly from freeListAlloc rather
// than through a slab.Box: these nodes are threaded into an intrusive
// list and handed back to the allocator node-by-node by popFree, not
// released as a unit the way a Box's owner would release it.
func (a *Allocator) pushFree(order int, ptr uintptr) {
	lv := &a.levels[order]
	n, ok := a.freeListAlloc.Malloc()
	if !ok {
		panic("buddy: free-list allocator exhausted")
	}
	*n = freeNode{ptr: ptr, next: lv.freeHead}
	lv.freeHead = n
}

// popFree pops the head of order's free list, if any, returning the slab
// back to freeListAlloc. It does not consult the bitmap; callers must.
func (a *Allocator) popFree(order int) (ptr uintptr, ok bool) {
	lv := &a.levels[order]
	head := lv.freeHead
	if head == nil {
		return 0, false
	}
	lv.freeHead = head.next
	ptr = head.ptr
	a.freeListAlloc.Free(head)
	return ptr, true
}

// Malloc returns the address (offset included) of a free block of the given
// order, splitting a higher-order block if none is directly available.
func (a *Allocator) Malloc(order int) (ptr uintptr, ok bool) {
	orderSize := a.baseSize << uint(order)

	for {
		p, has := a.popFree(order)
		if !has {
			break
		}
		chunk := p / orderSize
		if a.levels[order].isUsed(chunk) {
			// Stale hint: this block was already claimed via a merge
			// somewhere above. Discard and keep looking.
			continue
		}
		a.levels[order].setUsed(chunk)
		return a.offset + p, true
	}

	if order == len(a.levels)-1 {
		return 0, false
	}

	parent, ok := a.Malloc(order + 1)
	if !ok {
		return 0, false
	}

	chunk := (parent - a.offset) / orderSize
	a.levels[order].setUnused(chunk + 1)
	a.pushFree(order, parent-a.offset+orderSize)

	return parent, true
}

// Free returns a previously allocated block to the allocator, merging
// with its buddy up through higher orders while the buddy is also free.
func (a *Allocator) Free(ptr uintptr, order int) {
	orderSize := a.baseSize << uint(order)
	chunk := (ptr - a.offset) / orderSize
	if a.levels[order].isUnused(chunk) {
		panic("buddy: double free detected")
	}
	// A merged block leaves its halves' bits set, so a block freed twice
	// shows up as a free ancestor instead.
	for o, c := order+1, chunk/2; o < len(a.levels); o, c = o+1, c/2 {
		if a.levels[o].isUnused(c) {
			panic("buddy: double free detected")
		}
	}

	if order < len(a.levels)-1 && a.levels[order].isUnused(chunk^1) {
		a.levels[order].setUsed(chunk ^ 1)
		a.Free(a.offset+(chunk&^1)*orderSize, order+1)
		return
	}

	a.levels[order].setUnused(chunk)
	a.pushFree(order, ptr-a.offset)
}

// MarkAsUsed marks every block overlapping [start, end) used across every
// order, including any partially-covered block at the top order, matching
// mem/mod.rs's boundary handling bit for bit: it climbs orders pairing up
// boundary blocks so that a region spanning an odd number of order-0 units
// at either edge still ends up fully covered.
func (a *Allocator) MarkAsUsed(start, end uintptr) {
	start = (start - a.offset) / a.baseSize
	end = (end - a.offset + a.baseSize - 1) / a.baseSize

	order := 0
	n := len(a.levels)
	for order < n-1 && start < end {
		if start&1 != 0 {
			a.orderMarkAsUsed(order, start)
		}
		if end&1 != 0 {
			a.orderMarkAsUsed(order, end-1)
		}
		start = (start + 1) / 2
		end /= 2
		order++
	}

	if order == n-1 {
		for i := start; i < end; i++ {
			a.levels[order].setUsed(i)
		}
	}
}

// orderMarkAsUsed marks chunk used at order, climbing to higher orders and
// splitting off the chunk's buddy into the free list wherever the parent
// block was previously free in bulk.
func (a *Allocator) orderMarkAsUsed(order int, chunk uintptr) {
	n := len(a.levels)
	// If no block containing chunk is free at any order, it is already
	// allocated or reserved and nothing needs splitting.
	for o, c := order, chunk; a.levels[o].isUsed(c); o, c = o+1, c/2 {
		if o == n-1 {
			return
		}
	}
	for order < n {
		if order < n-1 && a.levels[order].isUsed(chunk) {
			if a.levels[order].isUsed(chunk ^ 1) {
				a.levels[order].setUnused(chunk ^ 1)
				a.pushFree(order, (chunk^1)*(a.baseSize<<uint(order)))
			}
			order++
			chunk /= 2
			continue
		}
		a.levels[order].setUsed(chunk)
		return
	}
}
