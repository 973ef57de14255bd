package chunk

import (
	"bytes"
	"testing"
	"unsafe"

	"ashkernel/internal/bootinfo"
	"ashkernel/internal/frame"
	"ashkernel/internal/serial"
)

func testInit(t *testing.T) *Allocator {
	t.Helper()

	const regionFrames = 140 // enough for one top-order (256 MiB) block plus slack
	region := make([]byte, regionFrames*frame.Size+frame.Size)
	base := (uintptr(unsafe.Pointer(&region[0])) + frame.Mask) &^ frame.Mask

	m := bootinfo.StaticMap{{Start: base, Size: regionFrames * frame.Size}}
	sections := []bootinfo.Section{
		{Start: base, Size: 4 * frame.Size},
		{Start: base + 4*frame.Size, Size: frame.Size},
	}
	bootInfoArea := bootinfo.Area{Start: base + 8*frame.Size, Size: frame.Size}

	log := serial.New(&bytes.Buffer{})

	a, err := Init(m, sections, bootInfoArea, nil, log)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return a
}

func TestInitSucceeds(t *testing.T) {
	testInit(t)
}

func TestMallocReturnsUsableDistinctChunks(t *testing.T) {
	a := testInit(t)

	c1, err := a.Malloc(0)
	if err != nil {
		t.Fatalf("Malloc(0): %v", err)
	}
	if len(c1.Bytes) != frame.Size {
		t.Fatalf("len(c1.Bytes) = %d, want %d", len(c1.Bytes), frame.Size)
	}

	c2, err := a.Malloc(0)
	if err != nil {
		t.Fatalf("Malloc(0) second call: %v", err)
	}
	if c2.Virt == c1.Virt {
		t.Fatal("two allocations returned the same virtual address")
	}

	for i := range c1.Bytes {
		c1.Bytes[i] = 0xAB
	}
	for i := range c2.Bytes {
		c2.Bytes[i] = 0xCD
	}
	for i := range c1.Bytes {
		if c1.Bytes[i] != 0xAB {
			t.Fatalf("c1 was clobbered at byte %d, Malloc returned overlapping chunks", i)
		}
	}

	a.Free(c1, 0)
	a.Free(c2, 0)
}

func TestMallocHigherOrder(t *testing.T) {
	a := testInit(t)

	c, err := a.Malloc(2)
	if err != nil {
		t.Fatalf("Malloc(2): %v", err)
	}
	if len(c.Bytes) != 4*frame.Size {
		t.Fatalf("len(c.Bytes) = %d, want %d", len(c.Bytes), 4*frame.Size)
	}
}
