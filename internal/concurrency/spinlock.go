// File: internal/concurrency/spinlock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal spin lock for critical sections of a few instructions, such as
// the process-wide live-context counter. Spinning is acceptable there
// because the hold time is a single increment or decrement.

package concurrency

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a test-and-set lock. The zero value is unlocked.
type SpinLock struct {
	state atomic.Uint32
}

// Lock spins until the lock is acquired, yielding the processor between
// failed attempts.
func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.state.Store(0)
}
