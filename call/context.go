// File: call/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request context: one in-flight request/response exchange. A context is
// created unattached, becomes attached when submitted to the engine, is
// mutated only on the reactor thread while in flight, and is retired
// exactly once when the transport engine finishes with it.

package call

import (
	"bytes"
	"io"
	"sync/atomic"
	"time"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/buffer"
	"github.com/netfuse/muxhttp/httpheader"
)

// Callback is the caller's continuation, invoked exactly once on the
// reactor thread when the exchange finishes.
type Callback func(*Context)

// Lifecycle states. Transitions are strictly monotonic:
// unattached -> attached -> retired.
const (
	stateUnattached int32 = iota
	stateAttached
	stateRetired
)

// Context holds the identity, exchange state and result of one request.
type Context struct {
	method  string
	uri     string
	headers []string
	timeout time.Duration
	verbose bool

	tx []byte
	rx *buffer.Buffer

	rxHeaders   httpheader.Set
	status      int
	transportOK bool
	outcome     api.OutcomeCode

	start time.Time
	end   time.Time

	state  atomic.Int32
	closed atomic.Bool
	done   chan struct{}
	cb     Callback
}

// New creates an unattached context. Every context created counts against
// the process-wide live counter until Close is called.
func New(method, uri string, headers []string, timeout time.Duration) *Context {
	addLive(1)
	return &Context{
		method:  method,
		uri:     uri,
		headers: headers,
		timeout: timeout,
		rx:      buffer.New(),
		done:    make(chan struct{}),
	}
}

// Close releases the context's slot in the live counter. Safe to call on
// a context that was never submitted; calling it while the context is
// attached is a contract violation. Idempotent.
func (c *Context) Close() {
	if c.state.Load() == stateAttached {
		panic(api.Violationf("context closed while attached: %s", c.uri))
	}
	if c.closed.CompareAndSwap(false, true) {
		addLive(-1)
	}
}

// SetVerbose toggles per-exchange debug logging.
func (c *Context) SetVerbose(v bool) { c.verbose = v }

// SetTxContent sets the outgoing request body.
func (c *Context) SetTxContent(body string) { c.tx = []byte(body) }

func (c *Context) Method() string          { return c.method }
func (c *Context) URI() string             { return c.uri }
func (c *Context) Timeout() time.Duration  { return c.timeout }
func (c *Context) Verbose() bool           { return c.verbose }
func (c *Context) TxContent() string       { return string(c.tx) }
func (c *Context) TxLen() int              { return len(c.tx) }
func (c *Context) Status() int             { return c.status }
func (c *Context) TransportOK() bool       { return c.transportOK }
func (c *Context) Outcome() api.OutcomeCode { return c.outcome }

// RxBytes returns the accumulated response body.
func (c *Context) RxBytes() []byte { return c.rx.Bytes() }

// RxString returns the response body as a string.
func (c *Context) RxString() string { return c.rx.String() }

// RxLen reports the response body length in bytes.
func (c *Context) RxLen() int { return c.rx.Len() }

// RxHeader returns the value of a response header, "" if absent.
func (c *Context) RxHeader(name string) string { return c.rxHeaders.Get(name) }

// OK reports overall success: the transport layer succeeded and the
// response status is in the 2xx range.
func (c *Context) OK() bool {
	return c.transportOK && c.status >= 200 && c.status < 300
}

// Elapsed is the duration between attach and retirement, zero while the
// context has not yet retired.
func (c *Context) Elapsed() time.Duration {
	if c.state.Load() != stateRetired {
		return 0
	}
	return c.end.Sub(c.start)
}

// RxKBPerSec is a coarse goodput figure: body bytes per elapsed
// millisecond. Zero when the exchange has not retired.
func (c *Context) RxKBPerSec() int {
	ms := c.Elapsed().Milliseconds()
	if ms == 0 {
		return 0
	}
	return int(int64(c.rx.Len()) / ms)
}

// Done is closed at retirement, after the result fields are final.
func (c *Context) Done() <-chan struct{} { return c.done }

// Retired reports whether the context has finished its lifecycle.
func (c *Context) Retired() bool { return c.state.Load() == stateRetired }

// Spec builds the transport engine's view of this exchange. The sink
// writes into the context's receive buffer; header lines land in the
// context's header set.
func (c *Context) Spec() api.ExchangeSpec {
	var body io.Reader
	if len(c.tx) > 0 {
		body = bytes.NewReader(c.tx)
	}
	return api.ExchangeSpec{
		Method:  c.method,
		URI:     c.uri,
		Headers: c.headers,
		Timeout: c.timeout,
		Verbose: c.verbose,
		Body:    body,
		Sink:    c.rx,
		HeaderSink: func(name, value string) {
			c.rxHeaders = append(c.rxHeaders, httpheader.Header{Name: name, Value: value})
		},
	}
}

// Attach transitions the context to the attached state, recording the
// attach timestamp and the continuation. Called by the engine on the
// reactor thread. Attaching twice, or attaching a retired context, is a
// contract violation.
func (c *Context) Attach(cb Callback) {
	if !c.state.CompareAndSwap(stateUnattached, stateAttached) {
		panic(api.Violationf("double attach of context: %s", c.uri))
	}
	c.start = time.Now()
	c.cb = cb
}

// Retire finalizes the result, closes Done and invokes the continuation.
// Called by the engine on the reactor thread, strictly after the native
// handle has been detached. Retiring an unattached context is a contract
// violation.
func (c *Context) Retire(status int, outcome api.OutcomeCode) {
	if !c.state.CompareAndSwap(stateAttached, stateRetired) {
		panic(api.Violationf("retire of non-attached context: %s", c.uri))
	}
	c.end = time.Now()
	c.status = status
	c.outcome = outcome
	c.transportOK = outcome.TransportOK()
	close(c.done)
	if c.cb != nil {
		c.cb(c)
	}
}
