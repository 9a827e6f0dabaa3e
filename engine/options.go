// File: engine/options.go
// Package engine defines functional options for the Engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netfuse/muxhttp/control"
)

// Option customizes engine initialization.
type Option func(*Engine)

// WithKeepAlivePeriod overrides the fixed keep-alive tick period.
func WithKeepAlivePeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.keepAlivePeriod = d
		}
	}
}

// WithLogger replaces the default standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics publishes engine counters into the registry.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(e *Engine) { e.metrics = mr }
}

// WithProbes registers the engine's debug probe.
func WithProbes(p *control.Probes) Option {
	return func(e *Engine) { e.probes = p }
}
