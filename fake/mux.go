// File: fake/mux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scriptable fake of the pull-style transport engine. Tests drive it
// directly: issue socket and timer directives, complete or fail
// exchanges, and inspect the attach/detach bookkeeping. Single-goroutine
// by design; the test goroutine is the reactor thread.

package fake

import (
	"fmt"
	"time"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/httpheader"
)

// Exchange is the fake's view of one created handle.
type Exchange struct {
	Spec     api.ExchangeSpec
	Attached bool
	Detached bool
	Status   int
}

// SocketActionCall records one SocketAction invocation.
type SocketActionCall struct {
	Desc api.Descriptor
	Mask api.EventMask
}

// Mux implements api.MuxTransport with scripted behavior.
//
// By default an Attach immediately requests a zero-delay timer, the way
// a real multiplexing engine kicks off new work from its timer callback.
// Tests override behavior through the On* hooks.
type Mux struct {
	cbs        api.MuxCallbacks
	nextHandle api.Handle
	exchanges  map[api.Handle]*Exchange
	finished   []api.Finished

	// Instrumentation for assertions.
	SocketActions []SocketActionCall
	TimeActions   int

	// Failure injection.
	CreateErr error
	AttachErr error

	// Hooks. When nil, Attach requests NextTimer(0) and the action
	// entry points only record the call.
	OnAttach       func(m *Mux, h api.Handle)
	OnSocketAction func(m *Mux, d api.Descriptor, mask api.EventMask)
	OnTimeAction   func(m *Mux)
}

// NewMux returns an empty fake transport.
func NewMux() *Mux {
	return &Mux{exchanges: make(map[api.Handle]*Exchange)}
}

// SetCallbacks implements api.MuxTransport.
func (m *Mux) SetCallbacks(cbs api.MuxCallbacks) { m.cbs = cbs }

// CreateHandle implements api.MuxTransport.
func (m *Mux) CreateHandle(spec api.ExchangeSpec) (api.Handle, error) {
	if m.CreateErr != nil {
		return api.InvalidHandle, m.CreateErr
	}
	m.nextHandle++
	m.exchanges[m.nextHandle] = &Exchange{Spec: spec}
	return m.nextHandle, nil
}

// Attach implements api.MuxTransport.
func (m *Mux) Attach(h api.Handle) error {
	if m.AttachErr != nil {
		return m.AttachErr
	}
	ex, ok := m.exchanges[h]
	if !ok {
		return fmt.Errorf("attach: %w: %d", api.ErrUnknownHandle, h)
	}
	if ex.Attached {
		return fmt.Errorf("attach: %w: %d", api.ErrHandleExists, h)
	}
	ex.Attached = true
	if m.OnAttach != nil {
		m.OnAttach(m, h)
	} else if m.cbs.NextTimer != nil {
		m.cbs.NextTimer(0)
	}
	return nil
}

// Detach implements api.MuxTransport.
func (m *Mux) Detach(h api.Handle) error {
	ex, ok := m.exchanges[h]
	if !ok || !ex.Attached {
		return fmt.Errorf("detach: %w: %d", api.ErrUnknownHandle, h)
	}
	ex.Attached = false
	ex.Detached = true
	return nil
}

// SocketAction implements api.MuxTransport.
func (m *Mux) SocketAction(d api.Descriptor, mask api.EventMask) (int, error) {
	m.SocketActions = append(m.SocketActions, SocketActionCall{Desc: d, Mask: mask})
	if m.OnSocketAction != nil {
		m.OnSocketAction(m, d, mask)
	}
	return m.AttachedCount(), nil
}

// TimeAction implements api.MuxTransport.
func (m *Mux) TimeAction() (int, error) {
	m.TimeActions++
	if m.OnTimeAction != nil {
		m.OnTimeAction(m)
	}
	return m.AttachedCount(), nil
}

// NextFinished implements api.MuxTransport.
func (m *Mux) NextFinished() (api.Finished, bool) {
	if len(m.finished) == 0 {
		return api.Finished{}, false
	}
	fin := m.finished[0]
	m.finished = m.finished[1:]
	return fin, true
}

// ResponseStatus implements api.MuxTransport.
func (m *Mux) ResponseStatus(h api.Handle) int {
	if ex, ok := m.exchanges[h]; ok {
		return ex.Status
	}
	return 0
}

// RequestOpen issues the socket-open directive and reports the bridge's
// verdict.
func (m *Mux) RequestOpen(d api.Descriptor) error {
	return m.cbs.OpenSocket(d)
}

// RequestInterest issues the interest-change directive.
func (m *Mux) RequestInterest(d api.Descriptor, mask api.EventMask) {
	m.cbs.SetInterest(d, mask)
}

// RequestClose issues the socket-close directive.
func (m *Mux) RequestClose(d api.Descriptor) {
	m.cbs.CloseSocket(d)
}

// RequestTimer issues the next-timer-delay directive.
func (m *Mux) RequestTimer(d time.Duration) {
	m.cbs.NextTimer(d)
}

// Complete finishes an exchange successfully: headers and body flow into
// the context's sinks, the status is recorded and the handle joins the
// finished queue. The completion becomes visible to the bridge on its
// next drain.
func (m *Mux) Complete(h api.Handle, status int, headers []string, body string) {
	ex, ok := m.exchanges[h]
	if !ok {
		panic(fmt.Sprintf("fake: complete of unknown handle %d", h))
	}
	ex.Status = status
	for _, line := range headers {
		if hdr, parsed := httpheader.Parse(line); parsed && ex.Spec.HeaderSink != nil {
			ex.Spec.HeaderSink(hdr.Name, hdr.Value)
		}
	}
	if body != "" && ex.Spec.Sink != nil {
		_, _ = ex.Spec.Sink.Write([]byte(body))
	}
	m.finished = append(m.finished, api.Finished{Handle: h, Outcome: api.OutcomeOK})
}

// Fail finishes an exchange with a transport-level failure.
func (m *Mux) Fail(h api.Handle, outcome api.OutcomeCode) {
	if _, ok := m.exchanges[h]; !ok {
		panic(fmt.Sprintf("fake: fail of unknown handle %d", h))
	}
	m.finished = append(m.finished, api.Finished{Handle: h, Outcome: outcome})
}

// Exchange returns the fake's record for a handle, nil if unknown.
func (m *Mux) Exchange(h api.Handle) *Exchange {
	return m.exchanges[h]
}

// IsAttached reports whether the handle is currently attached.
func (m *Mux) IsAttached(h api.Handle) bool {
	ex, ok := m.exchanges[h]
	return ok && ex.Attached
}

// WasDetached reports whether Detach has been called for the handle.
func (m *Mux) WasDetached(h api.Handle) bool {
	ex, ok := m.exchanges[h]
	return ok && ex.Detached
}

// AttachedCount reports the number of currently attached handles.
func (m *Mux) AttachedCount() int {
	n := 0
	for _, ex := range m.exchanges {
		if ex.Attached {
			n++
		}
	}
	return n
}

// Handles returns every handle created so far, in creation order.
func (m *Mux) Handles() []api.Handle {
	out := make([]api.Handle, 0, len(m.exchanges))
	for h := api.Handle(1); h <= m.nextHandle; h++ {
		if _, ok := m.exchanges[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

// FinishedPending reports the number of completions not yet drained.
func (m *Mux) FinishedPending() int {
	return len(m.finished)
}
