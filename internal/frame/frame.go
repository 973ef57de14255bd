// Package frame holds the physical-frame geometry shared by every layer of
// the memory core: the bump allocator hands out frames of this size, the
// buddy allocator's base order is this size, and the page table maps
// everything in huge-page leaves of this size.
package frame

// Size is the granularity of a physical frame: 2 MiB, the x86-64 huge-page
// size. Every allocator in this module works in multiples of Size.
const Size = 2 << 20

// Mask is Size-1, used to test or strip low bits of an address.
const Mask = Size - 1

// Align rounds addr up to the next Size boundary.
func Align(addr uintptr) uintptr {
	return (addr + Mask) &^ Mask
}

// AlignDown rounds addr down to the previous Size boundary.
func AlignDown(addr uintptr) uintptr {
	return addr &^ Mask
}

// AlignSize behaves like Align but for plain integer sizes/counts.
func AlignSize(n uintptr) uintptr {
	return Align(n)
}

// AlignSizeDown behaves like AlignDown but for plain integer sizes/counts.
func AlignSizeDown(n uintptr) uintptr {
	return AlignDown(n)
}

// IsAligned reports whether addr is a multiple of Size.
func IsAligned(addr uintptr) bool {
	return addr&Mask == 0
}
