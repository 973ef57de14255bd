package vma

import (
	"testing"

	"ashkernel/internal/frame"
)

func newTestAllocator(areas []Area) *Allocator {
	return New(areas, make([]byte, 1<<18))
}

func TestAllocTakesBestFitArea(t *testing.T) {
	a := newTestAllocator([]Area{
		{Ptr: 0x1000_0000, Size: 4 * frame.Size},
		{Ptr: 0x2000_0000, Size: 10 * frame.Size},
	})

	ptr, size, ok := a.Alloc(3 * frame.Size)
	if !ok {
		t.Fatal("Alloc failed")
	}
	if ptr != 0x1000_0000 {
		t.Fatalf("Alloc chose ptr 0x%x, want the smaller fitting area at 0x1000_0000", ptr)
	}
	if size != 3*frame.Size {
		t.Fatalf("Alloc size = 0x%x, want 0x%x", size, 3*frame.Size)
	}
}

func TestAllocSplitsLeftoverBackIn(t *testing.T) {
	a := newTestAllocator([]Area{{Ptr: 0x4000_0000, Size: 10 * frame.Size}})

	ptr, size, ok := a.Alloc(3 * frame.Size)
	if !ok || ptr != 0x4000_0000 || size != 3*frame.Size {
		t.Fatalf("Alloc = 0x%x, 0x%x, %v", ptr, size, ok)
	}

	ptr2, size2, ok2 := a.Alloc(7 * frame.Size)
	if !ok2 {
		t.Fatal("second Alloc failed to find the leftover area")
	}
	if ptr2 != 0x4000_0000+3*frame.Size {
		t.Fatalf("second Alloc ptr = 0x%x, want the leftover area", ptr2)
	}
	if size2 != 7*frame.Size {
		t.Fatalf("second Alloc size = 0x%x, want 0x%x", size2, 7*frame.Size)
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := newTestAllocator([]Area{{Ptr: 0x5000_0000, Size: 2 * frame.Size}})
	if _, _, ok := a.Alloc(3 * frame.Size); ok {
		t.Fatal("expected Alloc to fail when no area is large enough")
	}
}

func TestFreeMergesWithBothNeighbors(t *testing.T) {
	base := uintptr(0x6000_0000)
	a := newTestAllocator([]Area{{Ptr: base, Size: 10 * frame.Size}})

	p1, _, _ := a.Alloc(2 * frame.Size) // [base, base+2)
	p2, _, _ := a.Alloc(2 * frame.Size) // [base+2, base+4)
	p3, _, _ := a.Alloc(2 * frame.Size) // [base+4, base+6)

	// Free the two outer pieces first; they shouldn't merge with each
	// other since p2 still separates them.
	a.Free(p1, 2*frame.Size)
	a.Free(p3, 2*frame.Size)

	// Freeing the middle piece should merge all three, plus the
	// remaining tail area, back into one area spanning the whole original
	// region.
	a.Free(p2, 2*frame.Size)

	ptr, size, ok := a.Alloc(10 * frame.Size)
	if !ok {
		t.Fatal("expected the fully-coalesced region to satisfy a 10-frame request")
	}
	if ptr != base || size != 10*frame.Size {
		t.Fatalf("Alloc after merge = 0x%x, 0x%x, want 0x%x, 0x%x", ptr, size, base, 10*frame.Size)
	}
}

func TestNeedsNewChunkAndAddChunk(t *testing.T) {
	a := newTestAllocator([]Area{{Ptr: 0x7000_0000, Size: 1 << 36}})
	count := 0
	for !a.NeedsNewChunk() {
		// Keep the first half of each two-frame allocation free: it cannot
		// merge with its neighbors, so every round adds one more free area
		// to both trees until their slabs run low.
		ptr, _, ok := a.Alloc(2 * frame.Size)
		if !ok {
			break
		}
		a.Free(ptr, frame.Size)
		count++
	}
	a.AddChunk(make([]byte, 1<<18))
	if _, _, ok := a.Alloc(frame.Size); !ok {
		t.Fatal("Alloc failed right after AddChunk")
	}
}
