// File: engine/pump.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer pump. The transport engine reports a desired next-wake delay;
// the pump keeps exactly one rescheduling single-shot timer for it. An
// independent fixed-period keep-alive tick fires the time-passed entry
// point regardless of requested delays, covering idle-connection
// housekeeping between explicit wakeups.

package engine

import (
	"time"

	"github.com/netfuse/muxhttp/api"
	"github.com/netfuse/muxhttp/control"
)

// nextTimer handles the next-timer-delay directive. Invoked from inside
// a transport engine call.
func (e *Engine) nextTimer(delay time.Duration) {
	if e.pumpArmed {
		e.reactor.CancelTimer(e.pumpTimer)
		e.pumpArmed = false
	}
	if e.closed || delay == api.NoTimer || delay < 0 {
		return
	}
	e.pumpTimer = e.reactor.SetTimer(delay, e.pumpFire)
	e.pumpArmed = true
}

func (e *Engine) pumpFire(err error) {
	if err != nil || e.closed {
		return
	}
	e.pumpArmed = false
	e.timeAction()
}

func (e *Engine) armKeepAlive() {
	if e.closed {
		return
	}
	e.kaTimer = e.reactor.SetTimer(e.keepAlivePeriod, e.keepAliveFire)
	e.kaArmed = true
}

func (e *Engine) keepAliveFire(err error) {
	if err != nil || e.closed {
		// A cancelled or errored tick is a quiet no-op, not an engine
		// fault.
		return
	}
	e.kaArmed = false
	if e.metrics != nil {
		e.metrics.Inc(control.MetricKeepAliveTick)
	}
	e.timeAction()
	e.armKeepAlive()
}

// timeAction forwards a timer expiry to the transport engine and drains
// completions, as after every delivered event.
func (e *Engine) timeAction() {
	still, err := e.mux.TimeAction()
	if err != nil {
		e.log.WithError(err).Error("engine: time action failed")
	} else {
		e.stillRunning = still
	}
	e.drain()
}
