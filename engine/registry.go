// File: engine/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket registry: maps transport-engine descriptors to reactor-bound
// wrappers. Entries exist iff the transport engine owns an open socket
// with that descriptor; every mutation happens on the reactor thread in
// response to a transport directive.

package engine

import (
	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/control"
)

// socketEntry is the reactor binding for one transport-engine socket.
// The transport engine owns the connection; the entry owns only the
// reactor waits.
type socketEntry struct {
	fd       api.Descriptor
	interest api.EventMask // last interest mask registered
	waiting  api.EventMask // directions with an outstanding wait
	closed   bool          // close directive seen, teardown pending
}

// openSocket handles the socket-open directive. Invoked from inside a
// transport engine call.
func (e *Engine) openSocket(d api.Descriptor) error {
	if e.closed {
		return api.ErrEngineClosed
	}
	if _, exists := e.sockets[d]; exists {
		panic(api.Violationf("open of already-registered descriptor %d", d))
	}
	e.sockets[d] = &socketEntry{fd: d}
	if e.metrics != nil {
		e.metrics.Inc(control.MetricSocketsOpened)
	}
	return nil
}

// setInterest handles the interest-change directive.
func (e *Engine) setInterest(d api.Descriptor, mask api.EventMask) {
	entry, ok := e.sockets[d]
	if !ok {
		panic(api.Violationf("interest change for unknown descriptor %d", d))
	}
	entry.interest = mask
	e.syncWaits(entry)
}

// closeSocket handles the socket-close directive. The entry leaves the
// registry immediately, but the wrapper itself is released only after
// control returns from the transport engine call that requested the
// close: the engine's stack may still reference it.
func (e *Engine) closeSocket(d api.Descriptor) {
	entry, ok := e.sockets[d]
	if !ok {
		panic(api.Violationf("close of unknown descriptor %d", d))
	}
	e.releaseSocket(d, entry)
}

func (e *Engine) releaseSocket(d api.Descriptor, entry *socketEntry) {
	entry.closed = true
	if entry.waiting != api.EventNone {
		e.reactor.CancelWait(d, api.DirRead)
		e.reactor.CancelWait(d, api.DirWrite)
		entry.waiting = api.EventNone
	}
	delete(e.sockets, d)
	e.pendingClose.Add(entry)
	e.scheduleFlush()
	if e.metrics != nil {
		e.metrics.Inc(control.MetricSocketsClosed)
	}
}

// syncWaits reconciles outstanding reactor waits with the entry's
// interest mask. At most one wait per direction is ever pending; arming
// an already-waiting direction is a no-op, dropping interest cancels it.
func (e *Engine) syncWaits(entry *socketEntry) {
	for _, dir := range [...]api.Direction{api.DirRead, api.DirWrite} {
		want := entry.interest.Has(dir)
		have := entry.waiting.Has(dir)
		switch {
		case want && !have:
			e.armWait(entry, dir)
		case !want && have:
			e.reactor.CancelWait(entry.fd, dir)
			entry.waiting &^= dir.Mask()
		}
	}
}

func (e *Engine) armWait(entry *socketEntry, dir api.Direction) {
	entry.waiting |= dir.Mask()
	if err := e.reactor.AsyncWait(entry.fd, dir, e.readyFn(entry, dir)); err != nil {
		entry.waiting &^= dir.Mask()
		e.log.WithError(err).WithField("fd", entry.fd).Error("engine: socket wait failed")
	}
}

// readyFn builds the readiness continuation for one direction of one
// wrapper. The closure carries the wrapper itself, so a stale event can
// never resolve to a recycled descriptor.
func (e *Engine) readyFn(entry *socketEntry, dir api.Direction) func(error) {
	return func(err error) {
		if entry.closed || e.closed {
			return
		}
		entry.waiting &^= dir.Mask()

		mask := dir.Mask()
		if err != nil {
			mask |= api.EventErr
		}
		still, aerr := e.mux.SocketAction(entry.fd, mask)
		if aerr != nil {
			e.log.WithError(aerr).WithField("fd", entry.fd).Error("engine: socket action failed")
		} else {
			e.stillRunning = still
		}
		e.drain()

		// The action may have changed interest or closed the socket;
		// re-arm only if this direction is still wanted.
		if !entry.closed && !e.closed && entry.interest.Has(dir) && !entry.waiting.Has(dir) {
			e.armWait(entry, dir)
		}
	}
}

// scheduleFlush queues one deferred pass releasing closed wrappers once
// the current reactor callback has returned.
func (e *Engine) scheduleFlush() {
	if e.flushQueued {
		return
	}
	e.flushQueued = true
	e.reactor.Post(e.flushClosed)
}

func (e *Engine) flushClosed() {
	e.flushQueued = false
	for e.pendingClose.Length() > 0 {
		entry := e.pendingClose.Remove().(*socketEntry)
		e.log.WithField("fd", entry.fd).Trace("engine: socket wrapper released")
	}
}
