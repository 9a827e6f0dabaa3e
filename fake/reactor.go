// Package fake
// Author: momentics <momentics@gmail.com>
//
// Deterministic test doubles for the bridge's collaborators. The fake
// reactor is pumped manually: the goroutine calling RunPending, Advance
// and FireReadiness plays the role of the reactor thread, so tests are
// fully sequential with a virtual clock.

package fake

import (
	"sync"
	"time"

	"github.com/netfuse/muxhttp/api"
)

type waitKey struct {
	fd  api.Descriptor
	dir api.Direction
}

type fakeTimer struct {
	at time.Duration
	fn func(error)
}

// Reactor implements api.Reactor with manual pumping and a virtual
// clock. Post is safe from any goroutine; everything else, including the
// pump methods, belongs to the single test goroutine.
type Reactor struct {
	mu    sync.Mutex
	tasks []func()

	now    time.Duration
	nextID api.TimerID
	timers map[api.TimerID]*fakeTimer

	waits map[waitKey]func(error)
}

// NewReactor returns an empty, un-advanced reactor.
func NewReactor() *Reactor {
	return &Reactor{
		timers: make(map[api.TimerID]*fakeTimer),
		waits:  make(map[waitKey]func(error)),
	}
}

// Post queues a task for the next RunPending.
func (r *Reactor) Post(task func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
}

// SetTimer schedules fn at virtual time now+delay.
func (r *Reactor) SetTimer(delay time.Duration, onFire func(error)) api.TimerID {
	r.nextID++
	r.timers[r.nextID] = &fakeTimer{at: r.now + delay, fn: onFire}
	return r.nextID
}

// CancelTimer drops a pending timer; its callback is never invoked.
func (r *Reactor) CancelTimer(id api.TimerID) {
	delete(r.timers, id)
}

// AsyncWait records a one-shot wait, replacing any pending wait for the
// same descriptor and direction.
func (r *Reactor) AsyncWait(d api.Descriptor, dir api.Direction, onReady func(error)) error {
	r.waits[waitKey{fd: d, dir: dir}] = onReady
	return nil
}

// CancelWait drops a pending wait without invoking it.
func (r *Reactor) CancelWait(d api.Descriptor, dir api.Direction) {
	delete(r.waits, waitKey{fd: d, dir: dir})
}

// RunPending executes queued tasks, including tasks they queue in turn,
// until none remain. Returns the number of tasks executed.
func (r *Reactor) RunPending() int {
	ran := 0
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return ran
		}
		task := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		task()
		ran++
	}
}

// Advance moves the virtual clock forward by d, firing due timers in
// deadline order (ties in scheduling order) and pumping tasks after each
// fire.
func (r *Reactor) Advance(d time.Duration) {
	r.RunPending()
	target := r.now + d
	for {
		var (
			dueID api.TimerID
			due   *fakeTimer
		)
		for id, tm := range r.timers {
			if tm.at > target {
				continue
			}
			if due == nil || tm.at < due.at || (tm.at == due.at && id < dueID) {
				dueID, due = id, tm
			}
		}
		if due == nil {
			break
		}
		delete(r.timers, dueID)
		r.now = due.at
		due.fn(nil)
		r.RunPending()
	}
	r.now = target
}

// FireReadiness completes the pending wait for a direction, if one
// exists, then pumps tasks. Reports whether a wait was pending.
func (r *Reactor) FireReadiness(d api.Descriptor, dir api.Direction) bool {
	key := waitKey{fd: d, dir: dir}
	cb, ok := r.waits[key]
	if !ok {
		return false
	}
	delete(r.waits, key)
	cb(nil)
	r.RunPending()
	return true
}

// HasWait reports whether a wait is pending for the direction.
func (r *Reactor) HasWait(d api.Descriptor, dir api.Direction) bool {
	_, ok := r.waits[waitKey{fd: d, dir: dir}]
	return ok
}

// PendingTimers reports the number of scheduled, unfired timers.
func (r *Reactor) PendingTimers() int {
	return len(r.timers)
}

// PendingTasks reports the number of queued, unrun tasks.
func (r *Reactor) PendingTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
