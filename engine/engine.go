// File: engine/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine bridges the pull-style multiplexed transport engine into the
// push-style reactor. It owns the socket registry, the timer pump and
// the in-flight arena; every piece of its mutable state except the
// pending counter is confined to the reactor thread.

package engine

import (
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/call"
	"github.com/netfuse/muxhttp/control"
)

const defaultKeepAlivePeriod = time.Second

// Engine wires the transport engine's directives to reactor primitives
// and retires request contexts as they finish.
type Engine struct {
	reactor api.Reactor
	mux     api.MuxTransport
	log     logrus.FieldLogger
	metrics *control.MetricsRegistry
	probes  *control.Probes

	keepAlivePeriod time.Duration

	// Reactor-thread confined state.
	sockets      map[api.Descriptor]*socketEntry
	inflight     map[api.Handle]*call.Context
	pendingClose *queue.Queue
	flushQueued  bool
	pumpTimer    api.TimerID
	pumpArmed    bool
	kaTimer      api.TimerID
	kaArmed      bool
	stillRunning int
	closed       bool

	pending atomic.Int64
}

// New builds an Engine over the given reactor and transport engine,
// registers the directive callbacks and arms the keep-alive tick.
func New(r api.Reactor, mux api.MuxTransport, opts ...Option) *Engine {
	e := &Engine{
		reactor:         r,
		mux:             mux,
		log:             logrus.StandardLogger(),
		keepAlivePeriod: defaultKeepAlivePeriod,
		sockets:         make(map[api.Descriptor]*socketEntry),
		inflight:        make(map[api.Handle]*call.Context),
		pendingClose:    queue.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	mux.SetCallbacks(api.MuxCallbacks{
		OpenSocket:  e.openSocket,
		CloseSocket: e.closeSocket,
		SetInterest: e.setInterest,
		NextTimer:   e.nextTimer,
	})

	if e.probes != nil {
		e.probes.Register("engine", func() any {
			return map[string]any{
				"pending": e.PendingCount(),
				"live":    call.LiveCount(),
			}
		})
	}

	r.Post(e.armKeepAlive)
	return e
}

// Submit attaches the context to the engine and returns immediately. The
// continuation runs exactly once, on the reactor thread, when the
// exchange finishes. Safe from any goroutine.
func (e *Engine) Submit(ctx *call.Context, cb call.Callback) {
	e.reactor.Post(func() { e.attach(ctx, cb) })
}

// SubmitBlocking submits the context and parks the calling goroutine on
// its completion signal, returning the finished context. Must not be
// called from the reactor thread.
func (e *Engine) SubmitBlocking(ctx *call.Context) *call.Context {
	e.Submit(ctx, nil)
	<-ctx.Done()
	return ctx
}

// Shutdown schedules engine teardown on the reactor thread and returns:
// pending timers are cancelled, in-flight contexts are force-failed with
// the shutdown outcome (their continuations still run, exactly once),
// registered sockets are released and further submissions retire
// immediately with the shutdown outcome. Idempotent.
func (e *Engine) Shutdown() {
	e.reactor.Post(e.teardown)
}

// PendingCount reports the number of attached-but-not-retired contexts.
// Safe from any goroutine.
func (e *Engine) PendingCount() int {
	return int(e.pending.Load())
}

// LiveContextCount reports the process-wide number of request contexts
// created and not yet closed.
func (e *Engine) LiveContextCount() int {
	return call.LiveCount()
}

// Snapshot is a reactor-consistent view of engine internals.
type Snapshot struct {
	Pending      int
	Sockets      int
	InFlight     int
	StillRunning int
	Closed       bool
	Interest     map[api.Descriptor]api.EventMask
}

// Inspect runs fn on the reactor thread with a consistent snapshot.
// Diagnostic; safe from any goroutine.
func (e *Engine) Inspect(fn func(Snapshot)) {
	e.reactor.Post(func() {
		s := Snapshot{
			Pending:      e.PendingCount(),
			Sockets:      len(e.sockets),
			InFlight:     len(e.inflight),
			StillRunning: e.stillRunning,
			Closed:       e.closed,
			Interest:     make(map[api.Descriptor]api.EventMask, len(e.sockets)),
		}
		for d, entry := range e.sockets {
			s.Interest[d] = entry.interest
		}
		fn(s)
	})
}

// attach runs on the reactor thread and moves the context into the
// in-flight arena. The arena slot is the owning self-reference: it keeps
// the context alive until retirement even if the caller drops its own
// handle.
func (e *Engine) attach(ctx *call.Context, cb call.Callback) {
	ctx.Attach(cb)

	if e.closed {
		e.countFailure()
		ctx.Retire(0, api.OutcomeShutdown)
		return
	}
	if e.metrics != nil {
		e.metrics.Inc(control.MetricSubmitted)
	}

	h, err := e.mux.CreateHandle(ctx.Spec())
	if err != nil {
		e.log.WithError(err).WithField("uri", ctx.URI()).Warn("engine: create handle failed")
		e.countFailure()
		ctx.Retire(0, api.OutcomeTransportError)
		return
	}
	if _, dup := e.inflight[h]; dup {
		panic(api.Violationf("native handle %d already in flight", h))
	}

	e.inflight[h] = ctx
	e.pending.Add(1)

	if err := e.mux.Attach(h); err != nil {
		e.log.WithError(err).WithField("uri", ctx.URI()).Warn("engine: attach failed")
		delete(e.inflight, h)
		e.pending.Add(-1)
		e.countFailure()
		ctx.Retire(0, api.OutcomeTransportError)
		return
	}

	if ctx.Verbose() {
		e.log.WithFields(logrus.Fields{
			"method":  ctx.Method(),
			"uri":     ctx.URI(),
			"timeout": ctx.Timeout(),
			"handle":  h,
		}).Debug("engine: exchange attached")
	}
}

// teardown runs on the reactor thread. See Shutdown for the documented
// force-fail policy.
func (e *Engine) teardown() {
	if e.closed {
		return
	}
	e.closed = true

	if e.pumpArmed {
		e.reactor.CancelTimer(e.pumpTimer)
		e.pumpArmed = false
	}
	if e.kaArmed {
		e.reactor.CancelTimer(e.kaTimer)
		e.kaArmed = false
	}

	for h, ctx := range e.inflight {
		if err := e.mux.Detach(h); err != nil {
			e.log.WithError(err).Error("engine: detach during shutdown failed")
		}
		delete(e.inflight, h)
		e.pending.Add(-1)
		e.countFailure()
		ctx.Retire(0, api.OutcomeShutdown)
	}

	for d, entry := range e.sockets {
		e.releaseSocket(d, entry)
	}

	e.log.Debug("engine: shut down")
}

func (e *Engine) countFailure() {
	if e.metrics != nil {
		e.metrics.Inc(control.MetricFailed)
	}
}
