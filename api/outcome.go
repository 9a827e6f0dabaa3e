// File: api/outcome.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// OutcomeCode is the transport-level verdict for one finished exchange.
// Anything other than OutcomeOK means the exchange failed below the
// protocol layer; the response status, if any, is reported separately.
type OutcomeCode int

const (
	OutcomeOK OutcomeCode = iota
	OutcomeCouldntConnect
	OutcomeTimeout
	OutcomeTransportError
	OutcomeShutdown
)

// TransportOK reports whether the exchange completed at the transport
// layer. Protocol-level failure (a non-2xx status) is judged separately.
func (c OutcomeCode) TransportOK() bool {
	return c == OutcomeOK
}

func (c OutcomeCode) String() string {
	switch c {
	case OutcomeOK:
		return "ok"
	case OutcomeCouldntConnect:
		return "couldnt-connect"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport-error"
	case OutcomeShutdown:
		return "shutdown"
	}
	return "unknown"
}
