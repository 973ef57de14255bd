package bump

import (
	"testing"

	"ashkernel/internal/bootinfo"
)

func TestAllocateFrameHappyPath(t *testing.T) {
	m := bootinfo.StaticMap{
		{Start: 0x0, Size: 0x200000},
		{Start: 0x400000, Size: 0x10000000},
	}
	a := New(m, []Range{{Start: 0x0, End: 0x200000}})

	want := []uintptr{0x400000, 0x600000, 0x800000}
	for i, w := range want {
		got, ok := a.AllocateFrame()
		if !ok {
			t.Fatalf("allocation %d: expected a frame, got none", i)
		}
		if got != w {
			t.Fatalf("allocation %d: got 0x%x, want 0x%x", i, got, w)
		}
	}
}

func TestAllocateFrameMonotonicAndAligned(t *testing.T) {
	m := bootinfo.StaticMap{{Start: 0x200000, Size: 0x2000000}}
	a := New(m, nil)

	var prev uintptr
	for i := 0; i < 10; i++ {
		got, ok := a.AllocateFrame()
		if !ok {
			t.Fatalf("allocation %d: expected a frame", i)
		}
		if got&(0x200000-1) != 0 {
			t.Fatalf("allocation %d: 0x%x is not 2 MiB aligned", i, got)
		}
		if i > 0 && got <= prev {
			t.Fatalf("allocation %d: 0x%x did not advance past 0x%x", i, got, prev)
		}
		prev = got
	}
}

func TestAllocateFrameExhaustion(t *testing.T) {
	m := bootinfo.StaticMap{{Start: 0x200000, Size: 0x200000}}
	a := New(m, nil)

	if _, ok := a.AllocateFrame(); !ok {
		t.Fatal("expected the single frame to be allocated")
	}
	if _, ok := a.AllocateFrame(); ok {
		t.Fatal("expected exhaustion once the memory map is consumed")
	}
}

func TestAllocateFrameSkipsTakenAreas(t *testing.T) {
	m := bootinfo.StaticMap{{Start: 0x200000, Size: 0x1000000}}
	taken := []Range{{Start: 0x400000, End: 0x800000}}
	a := New(m, taken)

	for i := 0; i < 4; i++ {
		got, ok := a.AllocateFrame()
		if !ok {
			t.Fatalf("allocation %d: expected a frame", i)
		}
		for _, r := range taken {
			if r.Start < got+0x200000 && got < r.End {
				t.Fatalf("allocation %d: 0x%x overlaps taken range [0x%x,0x%x)", i, got, r.Start, r.End)
			}
		}
	}
}
