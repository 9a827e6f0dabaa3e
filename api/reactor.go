// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Contract of the push-style reactor the bridge runs inside: per-direction
// socket waits, single-shot timers and deferred task execution, all
// delivered serially on one dedicated reactor goroutine.

package api

import "time"

// TimerID identifies one pending reactor timer.
type TimerID uint64

// Reactor is the event-loop primitive consumed by the bridge.
//
// Post is safe from any goroutine. All other operations, and every
// callback the reactor delivers, execute on the reactor goroutine; the
// bridge relies on this confinement instead of fine-grained locking.
type Reactor interface {
	// AsyncWait arms a one-shot readiness wait for one direction of a
	// descriptor. Arming a direction that already has a pending wait
	// replaces it; exactly one wait per direction per descriptor is
	// outstanding at any time.
	AsyncWait(d Descriptor, dir Direction, onReady func(error)) error

	// CancelWait drops the pending wait for a direction, if any. The
	// dropped callback is never invoked.
	CancelWait(d Descriptor, dir Direction)

	// SetTimer schedules a single-shot timer. A zero delay fires on the
	// next loop iteration, never synchronously.
	SetTimer(delay time.Duration, onFire func(error)) TimerID

	// CancelTimer drops a pending timer; its callback is never invoked.
	// Unknown or already-fired IDs are ignored.
	CancelTimer(id TimerID)

	// Post queues a task for execution on the reactor goroutine.
	Post(task func())
}
