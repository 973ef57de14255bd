package buddy

import "testing"

const testBaseSize = 4096

func newTestAllocator(t *testing.T, depth int, totalBaseUnits uintptr) *Allocator {
	t.Helper()
	bitmapBytes := BitmapBytes(depth, totalBaseUnits)
	a := New(testBaseSize, depth, totalBaseUnits, 0, make([]byte, bitmapBytes), make([]byte, 1<<16))
	// Seed the top order's free list the way mem::init does: every
	// top-order slot starts bitmap-free but absent from the free list
	// until explicitly handed over.
	top := depth - 1
	topUnits := totalBaseUnits >> uint(top)
	topSize := uintptr(testBaseSize) << uint(top)
	for i := uintptr(0); i < topUnits; i++ {
		a.SeedFree(top, i*topSize)
	}
	return a
}

func TestMallocSplitsAndReturnsDistinctBlocks(t *testing.T) {
	a := newTestAllocator(t, 4, 16)

	seen := map[uintptr]bool{}
	for i := 0; i < 16; i++ {
		ptr, ok := a.Malloc(0)
		if !ok {
			t.Fatalf("Malloc(0) #%d failed", i)
		}
		if seen[ptr] {
			t.Fatalf("Malloc(0) returned duplicate address 0x%x", ptr)
		}
		seen[ptr] = true
	}
	if _, ok := a.Malloc(0); ok {
		t.Fatal("expected exhaustion after allocating every order-0 block")
	}
}

func TestFreeMergesBuddies(t *testing.T) {
	a := newTestAllocator(t, 2, 4)

	p0, ok := a.Malloc(0)
	if !ok {
		t.Fatal("Malloc(0) failed")
	}
	p1, ok := a.Malloc(0)
	if !ok {
		t.Fatal("Malloc(0) failed")
	}

	a.Free(p0, 0)
	a.Free(p1, 0)

	// p0 and p1 should have merged back into a single order-1 block,
	// satisfiable by one order-1 Malloc.
	if _, ok := a.Malloc(1); !ok {
		t.Fatal("expected the freed buddies to have merged into an order-1 block")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := newTestAllocator(t, 2, 4)
	ptr, ok := a.Malloc(0)
	if !ok {
		t.Fatal("Malloc(0) failed")
	}
	a.Free(ptr, 0)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double free")
		}
	}()
	a.Free(ptr, 0)
}

func TestMarkAsUsedExcludesRange(t *testing.T) {
	a := newTestAllocator(t, 3, 8)

	a.MarkAsUsed(0, 2*testBaseSize)

	for i := 0; i < 2; i++ {
		ptr, ok := a.Malloc(0)
		if ok && ptr < 2*testBaseSize {
			t.Fatalf("Malloc(0) returned 0x%x inside the marked-used range", ptr)
		}
	}
}
