// File: engine/engine_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine tests drive the bridge with the fake transport and the
// manually pumped fake reactor; the test goroutine plays the reactor
// thread, so every sequence is deterministic.

package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/call"
	"github.com/netfuse/muxhttp/control"
	"github.com/netfuse/muxhttp/engine"
	"github.com/netfuse/muxhttp/fake"
)

func newBridge(t *testing.T, opts ...engine.Option) (*engine.Engine, *fake.Reactor, *fake.Mux) {
	t.Helper()
	fr := fake.NewReactor()
	fm := fake.NewMux()
	e := engine.New(fr, fm, opts...)
	fr.RunPending() // arm the keep-alive tick
	return e, fr, fm
}

func snapshot(e *engine.Engine, fr *fake.Reactor) engine.Snapshot {
	var snap engine.Snapshot
	e.Inspect(func(s engine.Snapshot) { snap = s })
	fr.RunPending()
	return snap
}

// Scenario A: a full lock-step exchange. The transport opens a socket,
// writes the request on write readiness, reads the response on read
// readiness, completes with 200 "ok" and closes the socket.
func TestSubmitCompletesExchange(t *testing.T) {
	e, fr, fm := newBridge(t)

	const fd = api.Descriptor(7)
	fm.OnTimeAction = func(m *fake.Mux) {
		if m.TimeActions == 1 {
			require.NoError(t, m.RequestOpen(fd))
			m.RequestInterest(fd, api.EventWrite)
		}
	}
	fm.OnSocketAction = func(m *fake.Mux, d api.Descriptor, mask api.EventMask) {
		require.Equal(t, fd, d)
		switch {
		case mask&api.EventWrite != 0:
			m.RequestInterest(fd, api.EventRead)
		case mask&api.EventRead != 0:
			h := m.Handles()[0]
			m.Complete(h, 200, []string{"Content-Type: text/plain"}, "ok")
			m.RequestInterest(fd, api.EventNone)
			m.RequestClose(fd)
		}
	}

	ctx := call.New("GET", "http://upstream.test/ok", nil, 5*time.Second)
	defer ctx.Close()

	calls := 0
	e.Submit(ctx, func(c *call.Context) {
		calls++
		// Retirement happens strictly after the handle is detached.
		assert.True(t, fm.WasDetached(fm.Handles()[0]))
		assert.False(t, fm.IsAttached(fm.Handles()[0]))
	})
	fr.RunPending()

	require.Equal(t, 1, e.PendingCount())
	require.Len(t, fm.Handles(), 1)

	fr.Advance(0) // zero-delay pump kick from Attach
	require.True(t, fr.HasWait(fd, api.DirWrite))

	require.True(t, fr.FireReadiness(fd, api.DirWrite))
	require.True(t, fr.HasWait(fd, api.DirRead))
	require.False(t, fr.HasWait(fd, api.DirWrite))

	require.True(t, fr.FireReadiness(fd, api.DirRead))

	require.Equal(t, 1, calls)
	assert.True(t, ctx.TransportOK())
	assert.True(t, ctx.OK())
	assert.Equal(t, 200, ctx.Status())
	assert.Equal(t, "ok", ctx.RxString())
	assert.Equal(t, "text/plain", ctx.RxHeader("Content-Type"))
	assert.Equal(t, 0, e.PendingCount())

	snap := snapshot(e, fr)
	assert.Zero(t, snap.Sockets)
	assert.Zero(t, snap.InFlight)
}

// Scenario B: unreachable endpoint, 200 ms timeout. The transport
// enforces the timeout itself and reports a transport-level failure.
func TestTransportTimeoutSurfacesAsFailure(t *testing.T) {
	e, fr, fm := newBridge(t)

	fm.OnAttach = func(m *fake.Mux, h api.Handle) {
		m.RequestTimer(m.Exchange(h).Spec.Timeout)
	}
	fm.OnTimeAction = func(m *fake.Mux) {
		for _, h := range m.Handles() {
			if m.IsAttached(h) {
				m.Fail(h, api.OutcomeTimeout)
			}
		}
	}

	ctx := call.New("GET", "http://unreachable.test/", nil, 200*time.Millisecond)
	defer ctx.Close()

	retired := false
	e.Submit(ctx, func(*call.Context) { retired = true })
	fr.RunPending()

	fr.Advance(100 * time.Millisecond)
	require.False(t, retired, "failed before the timeout elapsed")

	fr.Advance(100 * time.Millisecond)
	require.True(t, retired)
	assert.False(t, ctx.TransportOK())
	assert.False(t, ctx.OK())
	assert.Equal(t, api.OutcomeTimeout, ctx.Outcome())
	assert.Equal(t, 0, e.PendingCount())
}

// Scenario C: 50 concurrent submissions; pending and live counters rise
// to 50 and fall back as completions drain.
func TestConcurrentSubmissions(t *testing.T) {
	e, fr, fm := newBridge(t)

	liveBase := call.LiveCount()
	const n = 50

	contexts := make([]*call.Context, n)
	var retired sync.WaitGroup
	retired.Add(n)

	var submitted sync.WaitGroup
	submitted.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer submitted.Done()
			contexts[i] = call.New("GET", "http://upstream.test/many", nil, time.Second)
			e.Submit(contexts[i], func(*call.Context) { retired.Done() })
		}()
	}
	submitted.Wait()

	require.Equal(t, liveBase+n, call.LiveCount())
	fr.RunPending()
	require.Equal(t, n, e.PendingCount())

	for _, h := range fm.Handles() {
		fm.Complete(h, 200, nil, "ok")
	}
	fm.RequestTimer(0)
	fr.Advance(0)
	retired.Wait()

	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, liveBase+n, e.LiveContextCount())
	for _, ctx := range contexts {
		assert.True(t, ctx.OK())
		ctx.Close()
	}
	assert.Equal(t, liveBase, e.LiveContextCount())
}

// Scenario D: a close directive with a read wait still pending cancels
// the wait; no stale readiness callback fires against the closed
// wrapper.
func TestCloseCancelsPendingWait(t *testing.T) {
	e, fr, fm := newBridge(t)

	const fd = api.Descriptor(9)
	require.NoError(t, fm.RequestOpen(fd))
	fm.RequestInterest(fd, api.EventRead)
	require.True(t, fr.HasWait(fd, api.DirRead))

	fm.RequestClose(fd)
	assert.False(t, fr.HasWait(fd, api.DirRead))
	assert.False(t, fr.FireReadiness(fd, api.DirRead), "stale readiness delivered")

	snap := snapshot(e, fr)
	assert.Zero(t, snap.Sockets)
}

func TestRegistryTracksTransportDirectives(t *testing.T) {
	e, fr, fm := newBridge(t)

	require.NoError(t, fm.RequestOpen(3))
	require.NoError(t, fm.RequestOpen(4))
	snap := snapshot(e, fr)
	require.Equal(t, 2, snap.Sockets)

	fm.RequestInterest(3, api.EventBoth)
	fm.RequestInterest(4, api.EventWrite)
	snap = snapshot(e, fr)
	assert.Equal(t, api.EventBoth, snap.Interest[3])
	assert.Equal(t, api.EventWrite, snap.Interest[4])
	assert.True(t, fr.HasWait(3, api.DirRead))
	assert.True(t, fr.HasWait(3, api.DirWrite))
	assert.False(t, fr.HasWait(4, api.DirRead))

	// Dropping a direction cancels only that wait.
	fm.RequestInterest(3, api.EventRead)
	assert.True(t, fr.HasWait(3, api.DirRead))
	assert.False(t, fr.HasWait(3, api.DirWrite))

	fm.RequestClose(3)
	fm.RequestClose(4)
	snap = snapshot(e, fr)
	assert.Zero(t, snap.Sockets)
}

func TestUnknownDescriptorIsFatal(t *testing.T) {
	_, _, fm := newBridge(t)

	assert.PanicsWithError(t,
		"bridge contract violation: interest change for unknown descriptor 99",
		func() { fm.RequestInterest(99, api.EventRead) })
	assert.PanicsWithError(t,
		"bridge contract violation: close of unknown descriptor 99",
		func() { fm.RequestClose(99) })

	require.NoError(t, fm.RequestOpen(5))
	assert.Panics(t, func() { _ = fm.RequestOpen(5) })
}

func TestDrainRunsToExhaustion(t *testing.T) {
	e, fr, fm := newBridge(t)

	a := call.New("GET", "http://upstream.test/a", nil, time.Second)
	b := call.New("GET", "http://upstream.test/b", nil, time.Second)
	defer a.Close()
	defer b.Close()

	e.Submit(a, nil)
	e.Submit(b, nil)
	fr.RunPending()

	handles := fm.Handles()
	require.Len(t, handles, 2)
	fm.Complete(handles[0], 200, nil, "a")
	fm.Complete(handles[1], 200, nil, "b")

	// One event drains both completions.
	fm.RequestTimer(0)
	fr.Advance(0)
	require.True(t, a.Retired())
	require.True(t, b.Retired())
	require.Zero(t, fm.FinishedPending())

	// A second drain with no intervening event yields nothing.
	fm.RequestTimer(0)
	fr.Advance(0)
	assert.Zero(t, fm.FinishedPending())
	assert.Equal(t, 0, e.PendingCount())
}

func TestKeepAliveTickDrivesTimeAction(t *testing.T) {
	e, fr, fm := newBridge(t, engine.WithKeepAlivePeriod(time.Second))

	require.Zero(t, fm.TimeActions)
	fr.Advance(time.Second)
	assert.Equal(t, 1, fm.TimeActions)
	fr.Advance(time.Second)
	assert.Equal(t, 2, fm.TimeActions)

	// After shutdown the tick is cancelled; nothing more fires.
	e.Shutdown()
	fr.RunPending()
	fr.Advance(2 * time.Second)
	assert.Equal(t, 2, fm.TimeActions)
}

func TestNextTimerReschedulesSingleShot(t *testing.T) {
	_, fr, fm := newBridge(t)

	fm.RequestTimer(100 * time.Millisecond)
	fm.RequestTimer(10 * time.Millisecond) // replaces, never stacks
	fr.Advance(10 * time.Millisecond)
	require.Equal(t, 1, fm.TimeActions)

	fr.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, fm.TimeActions, "replaced timer must not fire")

	fm.RequestTimer(10 * time.Millisecond)
	fm.RequestTimer(api.NoTimer) // sentinel cancels
	fr.Advance(time.Millisecond * 20)
	assert.Equal(t, 1, fm.TimeActions)
}

func TestShutdownForceFailsInFlight(t *testing.T) {
	e, fr, fm := newBridge(t)

	ctx := call.New("GET", "http://upstream.test/slow", nil, time.Minute)
	defer ctx.Close()

	calls := 0
	e.Submit(ctx, func(*call.Context) { calls++ })
	fr.RunPending()
	require.Equal(t, 1, e.PendingCount())

	require.NoError(t, fm.RequestOpen(11))
	fm.RequestInterest(11, api.EventRead)

	e.Shutdown()
	fr.RunPending()

	require.Equal(t, 1, calls)
	assert.Equal(t, api.OutcomeShutdown, ctx.Outcome())
	assert.False(t, ctx.TransportOK())
	assert.True(t, fm.WasDetached(fm.Handles()[0]))
	assert.Equal(t, 0, e.PendingCount())
	assert.False(t, fr.HasWait(11, api.DirRead))

	// Idempotent: a second shutdown changes nothing and runs no second
	// round of continuations.
	e.Shutdown()
	fr.RunPending()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.PendingCount())
}

func TestSubmitAfterShutdownRetiresImmediately(t *testing.T) {
	e, fr, _ := newBridge(t)

	e.Shutdown()
	fr.RunPending()

	ctx := call.New("GET", "http://upstream.test/late", nil, time.Second)
	defer ctx.Close()

	retired := false
	e.Submit(ctx, func(*call.Context) { retired = true })
	fr.RunPending()

	require.True(t, retired)
	assert.Equal(t, api.OutcomeShutdown, ctx.Outcome())
	assert.False(t, ctx.OK())
}

func TestCreateHandleFailureIsTransportFailure(t *testing.T) {
	e, fr, fm := newBridge(t)
	fm.CreateErr = api.ErrUnknownHandle

	ctx := call.New("GET", "http://upstream.test/", nil, time.Second)
	defer ctx.Close()

	e.Submit(ctx, nil)
	fr.RunPending()

	require.True(t, ctx.Retired())
	assert.Equal(t, api.OutcomeTransportError, ctx.Outcome())
	assert.Equal(t, 0, e.PendingCount())
}

func TestExactlyOneHandlePerContext(t *testing.T) {
	e, fr, fm := newBridge(t)

	ctx := call.New("GET", "http://upstream.test/", nil, time.Second)
	defer ctx.Close()
	e.Submit(ctx, nil)
	fr.RunPending()

	snap := snapshot(e, fr)
	require.Equal(t, 1, snap.InFlight)
	require.Equal(t, 1, fm.AttachedCount())

	fm.Complete(fm.Handles()[0], 204, nil, "")
	fm.RequestTimer(0)
	fr.Advance(0)

	snap = snapshot(e, fr)
	assert.Zero(t, snap.InFlight)
	assert.Zero(t, fm.AttachedCount())
	assert.True(t, ctx.OK())
}

func TestMetricsAndProbes(t *testing.T) {
	mr := control.NewMetricsRegistry()
	probes := control.NewProbes()
	e, fr, fm := newBridge(t, engine.WithMetrics(mr), engine.WithProbes(probes))

	ctx := call.New("GET", "http://upstream.test/", nil, time.Second)
	defer ctx.Close()
	e.Submit(ctx, nil)
	fr.RunPending()

	require.NoError(t, fm.RequestOpen(21))
	fm.Complete(fm.Handles()[0], 200, nil, "ok")
	fm.RequestTimer(0)
	fr.Advance(0)
	fm.RequestClose(21)
	fr.RunPending()

	assert.Equal(t, int64(1), mr.Get(control.MetricSubmitted))
	assert.Equal(t, int64(1), mr.Get(control.MetricCompleted))
	assert.Equal(t, int64(1), mr.Get(control.MetricSocketsOpened))
	assert.Equal(t, int64(1), mr.Get(control.MetricSocketsClosed))

	state := probes.Collect()["engine"].(map[string]any)
	assert.Equal(t, 0, state["pending"])
}

func TestSubmitBlocking(t *testing.T) {
	e, fr, fm := newBridge(t)

	ctx := call.New("GET", "http://upstream.test/block", nil, time.Second)
	defer ctx.Close()

	res := make(chan *call.Context, 1)
	go func() { res <- e.SubmitBlocking(ctx) }()

	require.Eventually(t, func() bool {
		fr.RunPending()
		return len(fm.Handles()) == 1
	}, 2*time.Second, time.Millisecond)

	fm.Complete(fm.Handles()[0], 200, nil, "ok")
	fm.RequestTimer(0)
	fr.Advance(0)

	select {
	case got := <-res:
		require.Same(t, ctx, got)
		assert.True(t, got.OK())
		assert.Equal(t, "ok", got.RxString())
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitBlocking did not return")
	}
}
