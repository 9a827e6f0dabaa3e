// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Monotonic counter registry for bridge observability. Counters are
// diagnostic only; no bridge control flow depends on them.

package control

import (
	"sync"
	"time"
)

// Counter keys published by the engine.
const (
	MetricSubmitted     = "engine.submitted"
	MetricCompleted     = "engine.completed"
	MetricFailed        = "engine.failed"
	MetricSocketsOpened = "engine.sockets_opened"
	MetricSocketsClosed = "engine.sockets_closed"
	MetricKeepAliveTick = "engine.keepalive_ticks"
)

// MetricsRegistry holds named monotonic counters behind a single mutex.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]int64
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{counters: make(map[string]int64)}
}

// Inc increments a counter by one.
func (mr *MetricsRegistry) Inc(key string) {
	mr.Add(key, 1)
}

// Add increments a counter by delta.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.mu.Lock()
	mr.counters[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Get returns the current value of one counter.
func (mr *MetricsRegistry) Get(key string) int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.counters[key]
}

// Snapshot returns a copy of every counter.
func (mr *MetricsRegistry) Snapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v
	}
	return out
}

// Updated reports when any counter last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
