// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime observability for the bridge: monotonic metric counters and
// named debug probes. Everything here is diagnostic; the engine never
// bases a control-flow decision on it.
package control
