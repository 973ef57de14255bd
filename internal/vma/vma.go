// Package vma implements the virtual memory area allocator from spec.md
// §4.6: a best-fit allocator over a set of free address ranges, backed by
// two order-6 B-trees — one keyed by (size, addr) for best-fit lookup, one
// keyed by addr for neighbor-merge lookup on free — ported from
// mem/vma.rs's VirtualMemoryAllocator. The original threads a single
// get_entry(&key) call's Result<Entry,Entry> through both the best-fit
// search and the free-side neighbor walk; Go's btree.BTree here exposes
// that as two direct primitives instead, CeilEntry and FloorEntry,
// which this package composes to the same coalescing effect.
package vma

import (
	"ashkernel/internal/btree"
	"ashkernel/internal/frame"
)

// areaKey orders free areas by size first, then by address — the order
// VirtualMemoryAllocator::alloc needs to find the smallest area that
// still satisfies a request (best fit), breaking ties by address.
type areaKey struct {
	size uintptr
	ptr  uintptr
}

func lessArea(a, b areaKey) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.ptr < b.ptr
}

// Area is one free virtual address range, [Ptr, Ptr+Size).
type Area struct {
	Ptr  uintptr
	Size uintptr
}

// Allocator hands out aligned virtual address ranges from a fixed set of
// initial free areas, coalescing adjacent ranges back together on Free.
type Allocator struct {
	bestFit *btree.BTree[areaKey, struct{}]
	merge   *btree.BTree[uintptr, uintptr] // addr -> size
}

// New partitions chunk in half between the two backing B-trees (mirroring
// mem/vma.rs's split_at_mut(chunk.len()/2)) and seeds both with the given
// free areas.
func New(freeAreas []Area, chunk []byte) *Allocator {
	mid := len(chunk) / 2
	a := &Allocator{
		bestFit: btree.New[areaKey, struct{}](chunk[:mid], lessArea),
		merge:   btree.New[uintptr, uintptr](chunk[mid:], btree.Less[uintptr]),
	}

	for _, area := range freeAreas {
		if _, had := a.bestFit.Insert(areaKey{size: area.Size, ptr: area.Ptr}, struct{}{}); had {
			panic("vma: duplicate free area supplied to New")
		}
		if _, had := a.merge.Insert(area.Ptr, area.Size); had {
			panic("vma: duplicate free area supplied to New")
		}
	}

	return a
}

// NeedsNewChunk reports whether either backing tree is low on node/leaf
// storage.
func (a *Allocator) NeedsNewChunk() bool {
	return a.bestFit.NeedsNewChunk() || a.merge.NeedsNewChunk()
}

// AddChunk routes an additional chunk to whichever tree needs it, or
// splits it between both if both do.
func (a *Allocator) AddChunk(chunk []byte) {
	bestNeeds := a.bestFit.NeedsNewChunk()
	mergeNeeds := a.merge.NeedsNewChunk()

	switch {
	case bestNeeds && !mergeNeeds:
		a.bestFit.AddChunk(chunk)
	case mergeNeeds && !bestNeeds:
		a.merge.AddChunk(chunk)
	default:
		mid := len(chunk) / 2
		a.bestFit.AddChunk(chunk[:mid])
		a.merge.AddChunk(chunk[mid:])
	}
}

// Alloc reserves a frame.Size-aligned region of at least allocSize bytes,
// taken from the smallest free area that fits (best fit), splitting off
// and re-inserting any leftover. ok is false if no free area is large
// enough.
func (a *Allocator) Alloc(allocSize uintptr) (ptr uintptr, size uintptr, ok bool) {
	allocSize = frame.AlignSize(allocSize)

	entry, found := a.bestFit.CeilEntry(areaKey{size: allocSize, ptr: 0})
	if !found {
		return 0, 0, false
	}
	key := entry.Key()
	areaPtr, areaSize := key.ptr, key.size

	a.bestFit.Remove(key)
	a.merge.Remove(areaPtr)

	if allocSize < areaSize {
		newPtr := areaPtr + allocSize
		newSize := areaSize - allocSize
		a.bestFit.Insert(areaKey{size: newSize, ptr: newPtr}, struct{}{})
		a.merge.Insert(newPtr, newSize)
	}

	return areaPtr, allocSize, true
}

// Free returns [ptr, ptr+size) to the free pool, merging with an
// immediately adjacent free area on either side if one exists. size must
// be a frame.Size multiple.
func (a *Allocator) Free(ptr uintptr, size uintptr) {
	if !frame.IsAligned(size) {
		panic("vma: Free size is not a frame.Size multiple")
	}

	if right, found := a.merge.CeilEntry(ptr); found && right.Key() == ptr+size {
		rightKey, rightSize := right.Key(), right.Value()
		size += rightSize
		a.merge.Remove(rightKey)
		a.bestFit.Remove(areaKey{size: rightSize, ptr: rightKey})
	}

	if left, found := a.merge.FloorEntry(ptr); found && left.Key()+left.Value() == ptr {
		leftKey, leftSize := left.Key(), left.Value()
		ptr = leftKey
		size += leftSize
		a.merge.Remove(leftKey)
		a.bestFit.Remove(areaKey{size: leftSize, ptr: leftKey})
	}

	a.merge.Insert(ptr, size)
	a.bestFit.Insert(areaKey{size: size, ptr: ptr}, struct{}{})
}
