// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named debug probes for internal state inspection. The engine registers
// a probe reporting its registry and in-flight arena sizes; probe
// functions run on the caller's goroutine, so probes over reactor-owned
// state must marshal through the reactor themselves.

package control

import "sync"

// Probes holds registered probe functions.
type Probes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewProbes creates an empty probe registry.
func NewProbes() *Probes {
	return &Probes{probes: make(map[string]func() any)}
}

// Register inserts or replaces a named probe.
func (p *Probes) Register(name string, fn func() any) {
	p.mu.Lock()
	p.probes[name] = fn
	p.mu.Unlock()
}

// Collect returns the output of every registered probe.
func (p *Probes) Collect() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.probes))
	for name, fn := range p.probes {
		out[name] = fn()
	}
	return out
}
