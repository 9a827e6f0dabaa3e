// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
//
// Platform poller contract consumed by Loop. Implementations live in the
// platform-tagged files; newPoller picks the right one at build time.

package reactor

import (
	"time"

	"github.com/netfuse/muxhttp/api"
)

// pollEvent is one readiness notification from the OS backend.
type pollEvent struct {
	fd   api.Descriptor
	mask api.EventMask
}

type poller interface {
	// arm sets the level-triggered interest for a descriptor; EventNone
	// removes it from the backend entirely.
	arm(fd api.Descriptor, mask api.EventMask) error

	// wait blocks up to timeout for events. A negative timeout blocks
	// indefinitely. A nil slice with nil error is a spurious wakeup.
	wait(timeout time.Duration) ([]pollEvent, error)

	// wake interrupts a concurrent wait. Safe from any goroutine.
	wake() error

	close() error
}
