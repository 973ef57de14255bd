// Package bump implements the bump allocator described in spec.md §4.1: it
// hands out 2 MiB physical frames from the boot memory map and never frees.
// It exists only to bootstrap the allocators that come after it, the way
// mem/bump.rs's BumpAllocator exists only to stand up the buddy allocator's
// own metadata.
package bump

import (
	"ashkernel/internal/bootinfo"
	"ashkernel/internal/frame"
)

// startFrame is where allocation begins: the first frame (physical 0) is
// always skipped, matching mem/bump.rs's current_frame: 0x200000 seed.
const startFrame = frame.Size

// Allocator is a monotonic frame allocator over a boot memory map. It does
// not support deallocation.
type Allocator struct {
	current    uintptr
	areas      []bootinfo.Area
	areaIndex  int
	takenAreas []Range
}

// Range is a half-open [Start, End) physical range the bump allocator must
// never hand out: the kernel image, the boot-info blob, the pre-mapped
// stack frame.
type Range struct {
	Start uintptr
	End   uintptr
}

// New builds a bump allocator over m's memory areas, excluding takenAreas.
func New(m bootinfo.MemoryMap, takenAreas []Range) *Allocator {
	return &Allocator{
		current:    startFrame,
		areas:      m.Areas(),
		areaIndex:  0,
		takenAreas: takenAreas,
	}
}

// AllocateFrame returns the next 2 MiB-aligned frame that lies entirely
// inside a usable memory area and overlaps no taken area, advancing
// monotonically. ok is false once no memory area remains.
func (a *Allocator) AllocateFrame() (addr uintptr, ok bool) {
	for {
		if a.areaIndex >= len(a.areas) {
			return 0, false
		}
		area := a.areas[a.areaIndex]

		if a.current < area.Start {
			a.current = frame.Align(area.Start)
		}

		if area.End() < a.current+frame.Size {
			a.areaIndex++
			continue
		}

		if taken, end := a.overlapsTaken(a.current); taken {
			a.current = frame.Align(end)
			continue
		}

		result := a.current
		a.current += frame.Size
		return result, true
	}
}

// overlapsTaken reports whether [addr, addr+frame.Size) intersects any
// taken range, returning that range's end so the caller can skip past it.
func (a *Allocator) overlapsTaken(addr uintptr) (bool, uintptr) {
	for _, r := range a.takenAreas {
		if r.Start < addr+frame.Size && addr < r.End {
			return true, r.End
		}
	}
	return false, 0
}
