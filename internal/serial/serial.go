// Package serial implements the line-oriented logging sink the memory core
// writes to: records of the form "<level>: <message>" (spec.md §6). The
// real sink is a UART, the way uart_qemu.go/uart_rpi.go drive PL011
// hardware; this package only owns the formatting and the locking
// discipline, writing through whatever io.Writer it is given so tests can
// supply a bytes.Buffer.
package serial

import (
	"fmt"
	"io"

	"ashkernel/internal/spinlock"
)

// Logger serializes writes to a sink behind a spin mutex and formats
// "<level>: <message>" lines.
type Logger struct {
	mu   spinlock.Mutex
	sink io.Writer
}

// New wraps sink in a Logger.
func New(sink io.Writer) *Logger {
	return &Logger{sink: sink}
}

func (l *Logger) writeLine(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.sink, "%s: %s\n", level, fmt.Sprintf(format, args...))
}

// Info logs an informational line.
func (l *Logger) Info(format string, args ...any) {
	l.writeLine("info", format, args...)
}

// Error logs an error line.
func (l *Logger) Error(format string, args ...any) {
	l.writeLine("error", format, args...)
}

// ForceUnlock clears the logger's lock unconditionally. A panic handler
// calls this before logging the fatal line, guaranteeing forward progress
// even if the lock was held by whatever code just panicked (spec.md §7).
func (l *Logger) ForceUnlock() {
	l.mu.ForceUnlock()
}
