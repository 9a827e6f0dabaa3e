// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-goroutine event loop. Posted tasks, due timers and socket
// readiness all execute serially inside Run; Post is the only operation
// safe from other goroutines. Timer and wait state is therefore kept
// without locks, the task FIFO behind a small mutex plus a poller wakeup.

package reactor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/netfuse/muxhttp/api"
)

type waitKey struct {
	fd  api.Descriptor
	dir api.Direction
}

// Loop implements api.Reactor on top of a platform poller.
type Loop struct {
	mu    sync.Mutex
	tasks *queue.Queue
	close bool

	timers  timerHeap
	active  map[api.TimerID]*timerEntry
	timerID api.TimerID

	waiters map[waitKey]func(error)

	poll    poller
	running atomic.Bool
	done    chan struct{}
	log     logrus.FieldLogger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger replaces the default standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) { l.log = log }
}

// New creates a loop with the platform poller. The loop does nothing
// until Run is called.
func New(opts ...Option) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	l := &Loop{
		tasks:   queue.New(),
		active:  make(map[api.TimerID]*timerEntry),
		waiters: make(map[waitKey]func(error)),
		poll:    p,
		done:    make(chan struct{}),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run executes the loop on the calling goroutine until Close. Everything
// the loop dispatches runs on this goroutine; it is the reactor thread.
func (l *Loop) Run() {
	if l.isClosed() || !l.running.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)
	defer l.poll.close()

	for {
		l.runTasks()
		if l.isClosed() {
			return
		}
		l.fireDueTimers()

		timeout := l.nextTimeout()
		if l.pendingTasks() > 0 {
			timeout = 0
		}
		events, err := l.poll.wait(timeout)
		if err != nil {
			if l.isClosed() {
				return
			}
			l.log.WithError(err).Error("reactor: poll wait failed")
			continue
		}
		for _, ev := range events {
			l.dispatch(ev)
		}
	}
}

// Close stops the loop and releases the poller. Pending tasks queued
// before Close still run; pending timers and waits are dropped without
// invoking their callbacks. Idempotent; blocks until Run has returned
// when the loop was running.
func (l *Loop) Close() {
	l.mu.Lock()
	already := l.close
	l.close = true
	l.mu.Unlock()
	if already {
		<-l.done
		return
	}
	if l.running.Load() {
		_ = l.poll.wake()
		<-l.done
		return
	}
	close(l.done)
	_ = l.poll.close()
}

// Post queues a task for execution on the reactor goroutine. Safe from
// any goroutine. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.close {
		l.mu.Unlock()
		return
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	_ = l.poll.wake()
}

// SetTimer schedules fn after delay. Reactor goroutine only. A zero
// delay fires on the next loop iteration, never synchronously.
func (l *Loop) SetTimer(delay time.Duration, onFire func(error)) api.TimerID {
	l.timerID++
	entry := &timerEntry{
		when: time.Now().Add(delay),
		id:   l.timerID,
		fn:   onFire,
	}
	l.active[entry.id] = entry
	heap.Push(&l.timers, entry)
	return entry.id
}

// CancelTimer drops a pending timer without invoking its callback.
// Unknown or fired IDs are ignored. Reactor goroutine only.
func (l *Loop) CancelTimer(id api.TimerID) {
	if entry, ok := l.active[id]; ok {
		entry.cancelled = true
		delete(l.active, id)
	}
}

// AsyncWait arms a one-shot readiness wait. A second wait for the same
// descriptor and direction replaces the first. Reactor goroutine only.
func (l *Loop) AsyncWait(d api.Descriptor, dir api.Direction, onReady func(error)) error {
	if l.isClosed() {
		return api.ErrReactorClosed
	}
	key := waitKey{fd: d, dir: dir}
	_, replacing := l.waiters[key]
	l.waiters[key] = onReady
	if err := l.rearm(d); err != nil {
		if !replacing {
			delete(l.waiters, key)
		}
		return err
	}
	return nil
}

// CancelWait drops the pending wait for one direction, if any. The
// dropped callback is never invoked. Reactor goroutine only.
func (l *Loop) CancelWait(d api.Descriptor, dir api.Direction) {
	key := waitKey{fd: d, dir: dir}
	if _, ok := l.waiters[key]; !ok {
		return
	}
	delete(l.waiters, key)
	if err := l.rearm(d); err != nil {
		l.log.WithError(err).WithField("fd", d).Warn("reactor: disarm failed")
	}
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.close
}

func (l *Loop) pendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

func (l *Loop) runTasks() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks.Remove().(func())
		l.mu.Unlock()
		task()
	}
}

func (l *Loop) fireDueTimers() {
	now := time.Now()
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.cancelled {
			heap.Pop(&l.timers)
			continue
		}
		if next.when.After(now) {
			return
		}
		heap.Pop(&l.timers)
		delete(l.active, next.id)
		next.fn(nil)
	}
}

// nextTimeout returns the poll timeout until the nearest live timer, or
// a negative duration for "block indefinitely".
func (l *Loop) nextTimeout() time.Duration {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.cancelled {
			heap.Pop(&l.timers)
			continue
		}
		d := time.Until(next.when)
		if d < 0 {
			return 0
		}
		return d
	}
	return -1
}

// rearm re-registers the descriptor with the union of its outstanding
// wait directions, removing it from the poller when none remain.
func (l *Loop) rearm(d api.Descriptor) error {
	var mask api.EventMask
	if _, ok := l.waiters[waitKey{fd: d, dir: api.DirRead}]; ok {
		mask |= api.EventRead
	}
	if _, ok := l.waiters[waitKey{fd: d, dir: api.DirWrite}]; ok {
		mask |= api.EventWrite
	}
	return l.poll.arm(d, mask)
}

// dispatch completes the one-shot waits satisfied by a poll event. The
// waiter is removed and the descriptor rearmed before the callback runs,
// so a callback re-issuing AsyncWait observes consistent state. Error
// conditions (EPOLLERR/EPOLLHUP) complete every outstanding wait on the
// descriptor; the transport engine discovers the actual socket error.
func (l *Loop) dispatch(ev pollEvent) {
	errCond := ev.mask&api.EventErr != 0
	for _, dir := range [...]api.Direction{api.DirRead, api.DirWrite} {
		if !ev.mask.Has(dir) && !errCond {
			continue
		}
		key := waitKey{fd: ev.fd, dir: dir}
		cb, ok := l.waiters[key]
		if !ok {
			continue
		}
		delete(l.waiters, key)
		if err := l.rearm(ev.fd); err != nil {
			l.log.WithError(err).WithField("fd", ev.fd).Warn("reactor: rearm failed")
		}
		if errCond {
			cb(api.ErrSocketCondition)
		} else {
			cb(nil)
		}
	}
}
