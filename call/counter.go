// File: call/counter.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide live-context counter. Purely diagnostic: nothing in the
// bridge makes a control-flow decision based on it.

package call

import "github.com/netfuse/muxhttp/internal/concurrency"

var (
	liveLock  concurrency.SpinLock
	liveCount int
)

func addLive(delta int) {
	liveLock.Lock()
	liveCount += delta
	liveLock.Unlock()
}

// LiveCount reports the number of contexts created and not yet closed.
func LiveCount() int {
	liveLock.Lock()
	n := liveCount
	liveLock.Unlock()
	return n
}
