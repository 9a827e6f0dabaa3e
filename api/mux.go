// File: api/mux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contract of the pull-style multiplexed transport engine wrapped by this
// library. The engine speaks the wire protocol over many concurrent
// connections but never blocks: it reacts to readiness notifications fed
// into SocketAction/TimeAction and issues socket/timer directives through
// MuxCallbacks.

package api

import (
	"io"
	"time"
)

// Descriptor identifies one underlying network socket. It is assigned by
// the transport engine when it opens a connection and is opaque to the
// bridge; on POSIX backends it happens to be the file descriptor.
type Descriptor uintptr

// Handle identifies one in-flight exchange inside the transport engine.
type Handle uint64

// InvalidHandle is never returned for a successfully created exchange.
const InvalidHandle Handle = 0

// EventMask describes socket readiness interest or delivery.
type EventMask uint8

const (
	EventNone  EventMask = 0
	EventRead  EventMask = 1 << 0
	EventWrite EventMask = 1 << 1
	EventErr   EventMask = 1 << 2

	EventBoth = EventRead | EventWrite
)

// Direction selects one half of a full-duplex socket wait.
type Direction uint8

const (
	DirRead Direction = iota
	DirWrite
)

// Mask returns the readiness bit corresponding to the direction.
func (d Direction) Mask() EventMask {
	if d == DirWrite {
		return EventWrite
	}
	return EventRead
}

// Has reports whether the mask includes the given direction.
func (m EventMask) Has(d Direction) bool {
	return m&d.Mask() != 0
}

// NoTimer is the next-timer-delay sentinel meaning "no timer needed".
const NoTimer = time.Duration(-1)

// ExchangeSpec carries everything the transport engine needs to run one
// request/response exchange. Sink receives response body bytes as they
// arrive; HeaderSink, when non-nil, receives each response header.
type ExchangeSpec struct {
	Method     string
	URI        string
	Headers    []string
	Timeout    time.Duration
	Verbose    bool
	Body       io.Reader
	Sink       io.Writer
	HeaderSink func(name, value string)
}

// Finished reports one completed exchange popped from the engine's
// finished queue.
type Finished struct {
	Handle  Handle
	Outcome OutcomeCode
}

// MuxCallbacks are the directives the transport engine issues while
// processing SocketAction/TimeAction calls. All of them are invoked on
// the reactor thread, from inside a transport engine entry point.
type MuxCallbacks struct {
	// OpenSocket asks the bridge to bind a new descriptor to the reactor.
	// A non-nil error fails the connection attempt upward.
	OpenSocket func(Descriptor) error

	// CloseSocket asks the bridge to release the reactor binding. The
	// bridge must not tear the wrapper down synchronously inside this
	// call; the engine's stack may still reference it.
	CloseSocket func(Descriptor)

	// SetInterest replaces the readiness interest for a descriptor.
	SetInterest func(Descriptor, EventMask)

	// NextTimer reschedules the engine's single wake-up timer. NoTimer
	// cancels it; zero fires on the next reactor iteration.
	NextTimer func(time.Duration)
}

// MuxTransport is the pull-style engine contract consumed by the bridge.
// All methods except SetCallbacks must be called on the reactor thread.
type MuxTransport interface {
	// SetCallbacks registers the directive sinks. Must be called once,
	// before any exchange is attached.
	SetCallbacks(MuxCallbacks)

	// CreateHandle allocates a native handle for one exchange.
	CreateHandle(spec ExchangeSpec) (Handle, error)

	// Attach adds the handle to the engine's running set.
	Attach(h Handle) error

	// Detach removes the handle from the engine's internal set. Required
	// before the handle can be reused or its context released.
	Detach(h Handle) error

	// SocketAction reports readiness on a descriptor and returns the
	// number of still-running exchanges.
	SocketAction(d Descriptor, mask EventMask) (stillRunning int, err error)

	// TimeAction reports timer expiry with no associated socket.
	TimeAction() (stillRunning int, err error)

	// NextFinished pops one finished exchange, if any.
	NextFinished() (Finished, bool)

	// ResponseStatus returns the final response status code observed for
	// the handle, or zero if none was received.
	ResponseStatus(h Handle) int
}
