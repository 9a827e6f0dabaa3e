//go:build !linux
// +build !linux

// File: reactor/poller_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback poller for platforms without an epoll backend. Tasks and
// timers work; socket waits report api.ErrWaitUnsupported.

package reactor

import (
	"time"

	"github.com/netfuse/muxhttp/api"
)

type stubPoller struct {
	wakeCh chan struct{}
}

func newPoller() (poller, error) {
	return &stubPoller{wakeCh: make(chan struct{}, 1)}, nil
}

func (p *stubPoller) arm(fd api.Descriptor, mask api.EventMask) error {
	if mask == api.EventNone {
		return nil
	}
	return api.ErrWaitUnsupported
}

func (p *stubPoller) wait(timeout time.Duration) ([]pollEvent, error) {
	if timeout < 0 {
		<-p.wakeCh
		return nil, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.wakeCh:
	case <-timer.C:
	}
	return nil, nil
}

func (p *stubPoller) wake() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *stubPoller) close() error { return nil }
