// Package bootinfo describes the narrow surface this module consumes from
// the boot-information reader: a memory-map iterator and the kernel image's
// address extents. The real reader (multiboot2/whatever the bootloader
// speaks) lives outside this module's scope; this package only pins down
// the interface and ships an in-memory double for tests, the same role
// iansmith-mazarin's page.go ATAG parser plays for its caller.
package bootinfo

// Area is one usable physical memory region reported by the bootloader,
// expressed [Start, Start+Size).
type Area struct {
	Start uintptr
	Size  uintptr
}

// End returns the exclusive end address of the area.
func (a Area) End() uintptr {
	return a.Start + a.Size
}

// MemoryMap yields the usable RAM regions reported by the bootloader, in
// ascending address order. Areas must not overlap.
type MemoryMap interface {
	// Areas returns the full list of usable memory areas. Implementations
	// may compute this lazily, but repeated calls must return the same
	// sequence for the lifetime of boot.
	Areas() []Area
}

// Section is one ELF section of the kernel image, as reported by the
// boot-info structure's section-header iterator.
type Section struct {
	Start uintptr
	Size  uintptr
	Flags uint32
}

// KernelExtent computes [kernelStart, kernelEnd) the way the original
// source does: kernelStart is the minimum section start address,
// kernelEnd is the MAXIMUM SECTION START ADDRESS, not
// max(start+size). This under-covers the last section if it is non-empty;
// spec.md's Open Questions flags this as ambiguous-but-reproduce-faithfully,
// and mem/mod.rs's init computes it exactly this way, so we keep the bug.
func KernelExtent(sections []Section) (start, end uintptr, ok bool) {
	if len(sections) == 0 {
		return 0, 0, false
	}
	start = sections[0].Start
	end = sections[0].Start
	for _, s := range sections[1:] {
		if s.Start < start {
			start = s.Start
		}
		if end < s.Start {
			end = s.Start
		}
	}
	return start, end, true
}

// Info is the subset of the boot-information blob this module reads:
// its own [Start, End) extent (so it can mark itself as a taken area) and
// the memory map.
type Info struct {
	Start uintptr
	End   uintptr
	Map   MemoryMap
}

// StaticMap is an in-memory MemoryMap, used by tests and by callers that
// have already parsed the real boot-info structure into a flat list.
type StaticMap []Area

// Areas implements MemoryMap.
func (m StaticMap) Areas() []Area {
	return m
}
