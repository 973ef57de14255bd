// Package slab implements the slab allocator and slab box from spec.md
// §4.2/§4.3: a fixed-size-payload allocator carved out of a raw byte chunk,
// threaded with an intrusive free list, and an owning box whose release is
// always explicit. This is a close port of mem/slab.rs's SlabAllocator<T>
// and SlabBox<T>, with Rust's NonNull<T>/Drop replaced by Go's
// unsafe.Pointer/generics and a runtime.SetFinalizer panic standing in for
// the Drop impl that made an implicit release a compile error in the
// original.
package slab

import (
	"runtime"
	"unsafe"
)

// freeListNode is written in place at the start of every free run. It must
// be 16 bytes — on amd64 a uintptr and a pointer are each 8 bytes, so the
// struct layout alone guarantees the size. Every run starts a multiple of
// the slab size (itself a multiple of 16) past its chunk's start, so nodes
// are 16-aligned whenever the chunk is.
type freeListNode struct {
	size uintptr
	next unsafe.Pointer // *freeListNode, or nil
}

// Allocator carves a supplied byte chunk into slabs sized unsafe.Sizeof(T),
// handed out from an intrusive free list. It never shrinks and never
// returns memory to the caller that supplied the chunks.
type Allocator[T any] struct {
	slabSize uintptr
	freeSize uintptr
	freeList unsafe.Pointer // *freeListNode, or nil once exhausted
}

// New initializes a slab allocator from chunk, which must be at least
// SlabSize bytes. Any trailing bytes that don't form a whole slab are
// dropped on the floor, matching mem/slab.rs's "len(chunk)/SLAB_SIZE *
// SLAB_SIZE" truncation.
func New[T any](chunk []byte) *Allocator[T] {
	a := &Allocator[T]{slabSize: slabSizeOf[T]()}
	a.initChunk(chunk)
	return a
}

// slabSizeOf returns the slab size for T: unsafe.Sizeof(T) rounded up to
// the next multiple of 16 (spec.md §4.2 requires SLAB_SIZE to be a multiple
// of 16 so the free-list node always fits; Go's generic struct layouts
// aren't guaranteed to land on a 16-byte boundary the way a hand-written
// #[repr(C, align(16))] type is, so we pad up here instead of rejecting
// otherwise-valid payload types).
func slabSizeOf[T any]() uintptr {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		panic("slab: zero-sized payload type")
	}
	return (size + 15) &^ 15
}

func (a *Allocator[T]) initChunk(chunk []byte) {
	usable := uintptr(len(chunk)) - uintptr(len(chunk))%a.slabSize
	if usable == 0 {
		panic("slab: chunk too small to hold a single slab")
	}
	head := (*freeListNode)(unsafe.Pointer(&chunk[0]))
	*head = freeListNode{size: usable, next: nil}
	a.freeList = unsafe.Pointer(head)
	a.freeSize = usable
}

// AddChunk prepends a new free run covering chunk to the allocator.
func (a *Allocator[T]) AddChunk(chunk []byte) {
	usable := uintptr(len(chunk)) - uintptr(len(chunk))%a.slabSize
	if usable == 0 {
		panic("slab: chunk too small to hold a single slab")
	}
	head := (*freeListNode)(unsafe.Pointer(&chunk[0]))
	*head = freeListNode{size: usable, next: a.freeList}
	a.freeList = unsafe.Pointer(head)
	a.freeSize += usable
}

// NeedsNewChunk reports whether fewer than 64 slabs remain free.
func (a *Allocator[T]) NeedsNewChunk() bool {
	return a.freeSize < 64*a.slabSize
}

// FreeBytes returns the number of bytes currently free across all runs.
func (a *Allocator[T]) FreeBytes() uintptr {
	return a.freeSize
}

// SlabSize returns unsafe.Sizeof(T) rounded up to a multiple of 16.
func (a *Allocator[T]) SlabSize() uintptr {
	return a.slabSize
}

// Malloc takes the head free-list entry and carves one slab off it,
// discarding any run too small to hold a slab and retrying on the next
// entry. ok is false only once the free list is fully exhausted.
func (a *Allocator[T]) Malloc() (ptr *T, ok bool) {
	for {
		if a.freeList == nil {
			return nil, false
		}
		head := (*freeListNode)(a.freeList)

		switch {
		case a.slabSize < head.size:
			slab := a.freeList
			rest := unsafe.Add(a.freeList, a.slabSize)
			*(*freeListNode)(rest) = freeListNode{size: head.size - a.slabSize, next: head.next}
			a.freeList = rest
			a.freeSize -= a.slabSize
			return (*T)(slab), true

		case a.slabSize == head.size:
			slab := a.freeList
			a.freeList = head.next
			a.freeSize -= a.slabSize
			return (*T)(slab), true

		default:
			// Run is smaller than one slab: unusable, discard and retry.
			a.freeSize -= head.size
			a.freeList = head.next
		}
	}
}

// Free prepends a length-SlabSize free-list entry at ptr. The allocator
// does not coalesce adjacent free slabs.
func (a *Allocator[T]) Free(ptr *T) {
	node := (*freeListNode)(unsafe.Pointer(ptr))
	*node = freeListNode{size: a.slabSize, next: a.freeList}
	a.freeList = unsafe.Pointer(node)
	a.freeSize += a.slabSize
}

// guard is the heap object a Box's finalizer attaches to. Box itself is
// typically copied by value (like a Rust NonNull is Copy), so the
// must-be-released tracking needs its own heap allocation to finalize.
type guard struct {
	released bool
}

// Box is an owning handle to one slab. Unlike a plain *T, a Box must be
// released with Free, FreeForget, or FreeMove before it goes out of scope;
// letting the garbage collector reclaim one without an explicit release is
// a fatal programming error; the program panics when that happens (Go has
// no destructor to make this a compile-time error the way Rust's Drop impl
// does, so a finalizer is the closest equivalent).
type Box[T any] struct {
	ptr   *T
	guard *guard
}

// closer is implemented by payload types that need cleanup beyond a plain
// memory release; Free invokes it, FreeForget and FreeMove do not.
type closer interface {
	Close()
}

// NewBox allocates a slab from alloc and moves value into place.
func NewBox[T any](alloc *Allocator[T], value T) Box[T] {
	ptr, ok := alloc.Malloc()
	if !ok {
		panic("slab: allocation exhausted")
	}
	*ptr = value

	g := &guard{}
	runtime.SetFinalizer(g, func(g *guard) {
		if !g.released {
			panic("slab: a SlabBox was collected without an explicit Free/FreeForget/FreeMove call")
		}
	})
	return Box[T]{ptr: ptr, guard: g}
}

// Get returns the boxed value's address for reading or mutation.
func (b Box[T]) Get() *T {
	return b.ptr
}

// Free runs the boxed value's Close method (if it implements one), then
// returns the slab to alloc.
func (b Box[T]) Free(alloc *Allocator[T]) {
	b.release()
	if c, ok := any(b.ptr).(closer); ok {
		c.Close()
	}
	alloc.Free(b.ptr)
}

// FreeForget returns the slab to alloc without invoking Close, for boxes
// whose contents were already moved out piecewise.
func (b Box[T]) FreeForget(alloc *Allocator[T]) {
	b.release()
	alloc.Free(b.ptr)
}

// FreeMove copies the boxed value out, returns the slab to alloc, and
// yields the copy.
func (b Box[T]) FreeMove(alloc *Allocator[T]) T {
	b.release()
	v := *b.ptr
	alloc.Free(b.ptr)
	return v
}

// Clone allocates a new box from alloc holding copyFn(*current value). Go
// has no Clone trait to dispatch on, so the caller supplies the copy.
func (b Box[T]) Clone(alloc *Allocator[T], copyFn func(T) T) Box[T] {
	return NewBox(alloc, copyFn(*b.ptr))
}

func (b Box[T]) release() {
	if b.guard.released {
		panic("slab: SlabBox released more than once")
	}
	b.guard.released = true
	runtime.SetFinalizer(b.guard, nil)
}
