// Package spinlock implements a test-and-test-and-set spin mutex for the
// single-core, interrupts-disabled model described in spec.md §5: no
// goroutine scheduler can be assumed to be running yet when the memory core
// takes this lock, so sync.Mutex (which parks on the scheduler) is not an
// option. This plays the role Rust's spin::Mutex plays in the original
// source.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// Mutex is a spin mutex. Its zero value is unlocked and ready to use.
type Mutex struct {
	locked atomic.Bool
}

// Lock spins until the lock is acquired.
func (m *Mutex) Lock() {
	for {
		if m.locked.CompareAndSwap(false, true) {
			return
		}
		for m.locked.Load() {
			runtime.Gosched()
		}
	}
}

// TryLock attempts to acquire the lock without spinning, reporting success.
func (m *Mutex) TryLock() bool {
	return m.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an already-unlocked Mutex is a
// programming error and panics, matching the core's general policy of
// panicking on invariant violations rather than silently continuing.
func (m *Mutex) Unlock() {
	if !m.locked.CompareAndSwap(true, false) {
		panic("spinlock: Unlock of unlocked Mutex")
	}
}

// ForceUnlock unconditionally clears the lock, regardless of current state.
// This is the escape hatch a panic/fault handler uses to guarantee it can
// still get a log line out even if the lock was held when the fault hit
// (spec.md §5, §7).
func (m *Mutex) ForceUnlock() {
	m.locked.Store(false)
}
