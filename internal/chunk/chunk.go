// Package chunk implements the global chunk allocator from spec.md §4.7:
// the top-level entry point that wires the bump, buddy, VMA, and
// page-table layers together into one `Init` + `Malloc(order)` surface,
// guarded by a single spin mutex. It is a close structural port of
// mem/mod.rs's free-standing `init`/`GlobalChunkAllocator::malloc`
// functions, including the kernel-extent union and the re-entrant
// `chunk_checks` flag that lets `Malloc` replenish the VMA tree's and the
// buddy free-list allocator's backing chunks by calling itself.
package chunk

import (
	"unsafe"

	"ashkernel/internal/bootinfo"
	"ashkernel/internal/buddy"
	"ashkernel/internal/bump"
	"ashkernel/internal/frame"
	"ashkernel/internal/pagetable"
	"ashkernel/internal/serial"
	"ashkernel/internal/spinlock"
	"ashkernel/internal/vma"
)

// Depth is the number of orders the buddy allocator covers: order 0 is
// one frame.Size block, order Depth-1 is the largest block the allocator
// will ever hand out, 2^(Depth-1) frames.
const Depth = 8

// Allocator is the kernel's single global memory allocator: physical
// frames from a buddy allocator, virtual address space from a VMA
// allocator, mapped together through a page-table builder. Its zero
// value is not usable; build one with Init.
type Allocator struct {
	mu spinlock.Mutex

	buddy    *buddy.Allocator
	virtAddr *vma.Allocator
	tables   *pagetable.Builder

	chunkChecks bool
	log         *serial.Logger
}

// addrToBytes reinterprets a real, backing-allocated address as a byte
// slice. Every "physical" address this package ever dereferences
// ultimately comes from a bootinfo.MemoryMap area or a buddy allocation
// carved out of one, so this is not interpreting an arbitrary number as a
// pointer — it is recovering the slice view of memory this same package
// handed out as a uintptr.
func addrToBytes(addr uintptr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// Init builds the global allocator: a bump allocator to bootstrap a few
// frames, a buddy allocator sized to the memory map, an initial identity
// map covering the kernel and boot info, and a VMA allocator seeded with
// whatever virtual address space that identity map and the rest of the
// canonical low half leave free. reserved lists any additional physical
// ranges (e.g. an early boot stack) the caller needs kept away from the
// bump allocator and marked used in the buddy allocator.
func Init(m bootinfo.MemoryMap, sections []bootinfo.Section, bootInfoArea bootinfo.Area, reserved []bump.Range, log *serial.Logger) (*Allocator, error) {
	kernelStart, kernelEnd, ok := bootinfo.KernelExtent(sections)
	if !ok {
		return nil, errInit("chunk: no kernel sections supplied")
	}
	log.Info("Entered chunk.Init()")

	areas := m.Areas()
	if len(areas) == 0 {
		return nil, errInit("chunk: empty memory map")
	}
	physBase := frame.AlignDown(areas[0].Start)
	var memEnd uintptr
	for _, area := range areas {
		if area.Start < physBase {
			physBase = frame.AlignDown(area.Start)
		}
		if e := area.End(); e > memEnd {
			memEnd = e
		}
	}
	// mem/mod.rs truncates mem_size to a TOP_BLOCK_SIZE boundary assuming
	// physical memory starts at address 0; physBase generalizes that to
	// whatever base address the memory map actually reports, so the same
	// truncation works when the underlying region doesn't start at 0 (as
	// in this package's own tests).
	topBlockSize := frame.Size << (Depth - 1)
	memSize := (memEnd - physBase) &^ uintptr(topBlockSize-1)

	takenAreas := append([]bump.Range{
		{Start: kernelStart, End: kernelEnd},
		{Start: bootInfoArea.Start, End: bootInfoArea.End()},
	}, reserved...)
	bumpAlloc := bump.New(m, takenAreas)

	log.Info("Creating bump_allocator")
	bitmapFrame, ok := bumpAlloc.AllocateFrame()
	if !ok {
		return nil, errInit("chunk: couldn't allocate a frame for the buddy bitmap")
	}
	log.Info("Allocated chunk=0x%x for buddy allocator", bitmapFrame)

	freeListFrame, ok := bumpAlloc.AllocateFrame()
	if !ok {
		return nil, errInit("chunk: couldn't allocate a frame for the buddy free-list allocator")
	}
	log.Info("Allocated chunk=0x%x for free list allocator", freeListFrame)

	totalBaseUnits := memSize / frame.Size
	bitmapBytes := buddy.BitmapBytes(Depth, totalBaseUnits)
	if bitmapBytes > frame.Size {
		return nil, errInit("chunk: buddy bitmap does not fit in a single frame for this memory size")
	}

	log.Info("Creating buddy_alloc")
	buddyAlloc := buddy.New(frame.Size, Depth, totalBaseUnits, physBase,
		addrToBytes(bitmapFrame, bitmapBytes),
		addrToBytes(freeListFrame, frame.Size))

	top := Depth - 1
	topUnits := totalBaseUnits >> uint(top)
	for i := uintptr(0); i < topUnits; i++ {
		buddyAlloc.SeedFree(top, i*uintptr(topBlockSize))
	}

	lowStart := min(kernelStart, bootInfoArea.Start)
	highEnd := max(kernelEnd, bootInfoArea.End())
	buddyAlloc.MarkAsUsed(lowStart, highEnd)
	buddyAlloc.MarkAsUsed(bitmapFrame, bitmapFrame+frame.Size)
	buddyAlloc.MarkAsUsed(freeListFrame, freeListFrame+frame.Size)
	for _, r := range reserved {
		buddyAlloc.MarkAsUsed(r.Start, r.End)
	}

	virtChunk, ok := buddyAlloc.Malloc(0)
	if !ok {
		return nil, errInit("chunk: couldn't allocate a frame for the virtual address allocator")
	}
	log.Info("Allocated chunk=0x%x for virtual address allocator", virtChunk)

	tables, err := pagetable.NewBuilder(func() (uintptr, bool) {
		p, ok := buddyAlloc.Malloc(0)
		if !ok {
			return 0, false
		}
		b := addrToBytes(p, frame.Size)
		for i := range b {
			b[i] = 0
		}
		return p, true
	})
	if err != nil {
		return nil, err
	}

	log.Info("Creating pml4_table")
	identityLow := lowStart &^ uintptr(frame.Size-1)
	identityHigh := frame.Align(highEnd)
	if err := tables.MapHugeRange(identityLow, identityLow, identityHigh-identityLow); err != nil {
		return nil, err
	}

	// virtCeiling bounds the free virtual space this kernel hands out to
	// well below PML4 slot 511 (reserved for the recursive self-map), a
	// generous 64 TiB window that leaves the rest of the canonical low
	// half untouched.
	const virtCeiling = uintptr(1) << 46
	freeAreas := seedVirtualAreas(identityLow, identityHigh, bootInfoArea, virtChunk, virtCeiling)
	virtAddr := vma.New(freeAreas, addrToBytes(virtChunk, frame.Size))

	a := &Allocator{
		buddy:       buddyAlloc,
		virtAddr:    virtAddr,
		tables:      tables,
		chunkChecks: true,
		log:         log,
	}
	log.Info("Initialized GLOBAL_CHUNK_ALLOCATOR")
	return a, nil
}

// seedVirtualAreas computes the free virtual-address ranges within
// [frame.Size, ceiling) left over once the identity-mapped low region, the
// boot-info area, and the virtual-address chunk itself are excluded,
// mirroring mem/mod.rs's sort-and-sweep over virt_start_addresses /
// virt_end_addresses.
func seedVirtualAreas(identityLow, identityHigh uintptr, bootInfoArea bootinfo.Area, virtChunk, ceiling uintptr) []vma.Area {
	type interval struct{ start, end uintptr }
	intervals := []interval{
		{identityLow, identityHigh},
		{bootInfoArea.Start &^ uintptr(frame.Size-1), frame.Align(bootInfoArea.End())},
		{virtChunk, virtChunk + frame.Size},
	}

	starts := make([]uintptr, len(intervals))
	ends := make([]uintptr, len(intervals))
	for i, iv := range intervals {
		starts[i] = iv.start
		ends[i] = iv.end
	}
	sortUintptrs(starts)
	sortUintptrs(ends)

	var areas []vma.Area
	i, j, depth := 0, 0, 0
	lastEnd := uintptr(frame.Size)

	for i < len(starts) && j < len(ends) {
		switch {
		case starts[i] < ends[j]:
			if depth == 0 && lastEnd < starts[i] {
				areas = append(areas, vma.Area{Ptr: lastEnd, Size: starts[i] - lastEnd})
			}
			depth++
			i++
		case ends[j] < starts[i]:
			lastEnd = ends[j]
			depth--
			j++
		default:
			i++
			j++
		}
	}

	if depth == 0 && lastEnd < ceiling {
		areas = append(areas, vma.Area{Ptr: lastEnd, Size: ceiling - lastEnd})
	}

	return areas
}

func sortUintptrs(s []uintptr) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Chunk is a single allocation returned by Malloc: the physical range a
// real consumer's MMU would translate Virt through, and Bytes, the byte
// slice this Go port actually reads and writes. On real hardware Virt
// would be the address code dereferences, with the page tables built by
// Malloc translating it to Phys behind the scenes; without a real MMU in
// this environment, Bytes is backed directly by Phys instead, and Virt is
// carried purely as the bookkeeping key the VMA allocator tracks and Free
// needs back.
type Chunk struct {
	Bytes []byte
	Virt  uintptr
	Phys  uintptr
}

// Malloc allocates a chunk of frame.Size * 2^order bytes: a physical
// range from the buddy allocator, a same-sized virtual range from the VMA
// allocator, mapped together with huge pages. order must be less than
// Depth.
func (a *Allocator) Malloc(order int) (Chunk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mallocLocked(order)
}

func (a *Allocator) mallocLocked(order int) (Chunk, error) {
	if a.chunkChecks {
		a.chunkChecks = false
		for a.virtAddr.NeedsNewChunk() {
			c, err := a.mallocLocked(0)
			if err != nil {
				a.chunkChecks = true
				return Chunk{}, err
			}
			a.virtAddr.AddChunk(c.Bytes)
		}
		for a.buddy.NeedsNewChunk() {
			c, err := a.mallocLocked(0)
			if err != nil {
				a.chunkChecks = true
				return Chunk{}, err
			}
			a.buddy.AddChunk(c.Bytes)
		}
		a.chunkChecks = true
	}

	size := uintptr(frame.Size) << uint(order)

	physAddr, ok := a.buddy.Malloc(order)
	if !ok {
		return Chunk{}, errInit("chunk: buddy allocator exhausted")
	}
	virtAddr, _, ok := a.virtAddr.Alloc(size)
	if !ok {
		return Chunk{}, errInit("chunk: virtual address space exhausted")
	}

	if err := a.tables.MapHugeRange(physAddr, virtAddr, size); err != nil {
		return Chunk{}, err
	}

	return Chunk{Bytes: addrToBytes(physAddr, size), Virt: virtAddr, Phys: physAddr}, nil
}

// Free returns a chunk previously returned by Malloc. Both the physical
// and virtual ranges are handed back to their respective allocators; the
// page-table mapping itself is left in place, since this kernel never
// unmaps a huge page once installed.
func (a *Allocator) Free(c Chunk, order int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := uintptr(frame.Size) << uint(order)
	a.buddy.Free(c.Phys, order)
	a.virtAddr.Free(c.Virt, size)
}

type errInit string

func (e errInit) Error() string { return string(e) }
