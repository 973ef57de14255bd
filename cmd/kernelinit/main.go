// Command kernelinit is the thin wiring that brings the memory core up
// during early boot: it hands the parsed boot information to
// internal/chunk.Init and logs each stage, the way
// mazboot/golang/main/kernel.go's KernelMain sequences uartInit, MMU
// bring-up, and heap initialization behind print() breadcrumbs. The real
// boot path never runs Go's func main(): the assembly stub parses the
// bootloader's memory map and calls KernelInit directly once it hands
// control to Go, exactly as boot.s calls KernelMain directly in
// src/kernel.go. func main() below exists only so `go build` can link this
// package at all (a bare `package main` with no main is a linker error);
// it mirrors src/kernel.go's own dummy main(), which calls KernelMain with
// placeholder values purely to keep the real entry point from being
// optimized away, then parks forever since bare metal never reaches it.
package main

import (
	"io"

	"ashkernel/internal/bootinfo"
	"ashkernel/internal/bump"
	"ashkernel/internal/chunk"
	"ashkernel/internal/serial"
)

// KernelInit brings up the global chunk allocator and returns it, or logs
// a fatal line and halts if bring-up fails. sink is the already-initialized
// UART writer; m, sections, and bootInfoArea are the boot-info reader's
// output, and reserved carries any extra physical ranges (an early boot
// stack, for instance) the caller has already claimed.
func KernelInit(sink io.Writer, m bootinfo.MemoryMap, sections []bootinfo.Section, bootInfoArea bootinfo.Area, reserved []bump.Range) *chunk.Allocator {
	log := serial.New(sink)
	log.Info("kernelinit: bringing up memory core")

	alloc, err := chunk.Init(m, sections, bootInfoArea, reserved, log)
	if err != nil {
		log.Error("kernelinit: fatal: %v", err)
		halt()
	}

	log.Info("kernelinit: memory core ready")
	return alloc
}

// halt parks the boot processor forever. A real build replaces this with
// an inline `hlt` loop; it is a plain infinite loop here since this
// module has no assembly stage of its own.
func halt() {
	for {
	}
}

// main exists only so this package links as a buildable `package main`; it
// is never reached on real hardware. The boot assembly stub calls
// KernelInit directly with the bootloader's real memory map the moment it
// hands control to Go, the same way boot.s calls KernelMain directly in
// src/kernel.go rather than going through Go's runtime entry point. This
// placeholder call with an empty memory map exists to keep KernelInit from
// being optimized out of a build that never runs through boot.s.
func main() {
	KernelInit(io.Discard, bootinfo.StaticMap(nil), nil, bootinfo.Area{}, nil)
	halt()
}
