// File: engine/drain.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion drainer. Runs after every event forwarded to the transport
// engine and empties its finished queue in the same reactor callback;
// a partial drain would leave completions invisible until the next
// unrelated event.

package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/control"
)

// drain retires every finished exchange: resolve the handle to its
// context, record the outcome, detach the native handle, release the
// arena slot and invoke the continuation. Loops to exhaustion.
func (e *Engine) drain() {
	for {
		fin, ok := e.mux.NextFinished()
		if !ok {
			return
		}
		ctx, ok := e.inflight[fin.Handle]
		if !ok {
			panic(api.Violationf("finished handle %d has no owning context", fin.Handle))
		}

		status := e.mux.ResponseStatus(fin.Handle)
		if err := e.mux.Detach(fin.Handle); err != nil {
			e.log.WithError(err).WithField("handle", fin.Handle).Error("engine: detach failed")
		}
		delete(e.inflight, fin.Handle)
		e.pending.Add(-1)

		if e.metrics != nil {
			if fin.Outcome.TransportOK() {
				e.metrics.Inc(control.MetricCompleted)
			} else {
				e.metrics.Inc(control.MetricFailed)
			}
		}
		if ctx.Verbose() {
			e.log.WithFields(logrus.Fields{
				"uri":     ctx.URI(),
				"handle":  fin.Handle,
				"outcome": fin.Outcome,
				"status":  status,
			}).Debug("engine: exchange finished")
		}

		ctx.Retire(status, fin.Outcome)
	}
}
