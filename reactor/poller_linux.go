//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller with an eventfd(2) wakeup channel.

package reactor

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netfuse/muxhttp/api"
)

const maxEvents = 128

type epollPoller struct {
	epfd   int
	wakefd int
	armed  map[api.Descriptor]api.EventMask
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		armed:  make(map[api.Descriptor]api.EventMask),
	}, nil
}

func (p *epollPoller) arm(fd api.Descriptor, mask api.EventMask) error {
	current, registered := p.armed[fd]
	if mask == api.EventNone {
		if !registered {
			return nil
		}
		delete(p.armed, fd)
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	}
	if registered && current == mask {
		return nil
	}

	var bits uint32
	if mask&api.EventRead != 0 {
		bits |= unix.EPOLLIN
	}
	if mask&api.EventWrite != 0 {
		bits |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: bits, Fd: int32(fd)}

	op := unix.EPOLL_CTL_ADD
	if registered {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, int(fd), &ev); err != nil {
		return err
	}
	p.armed[fd] = mask
	return nil
}

func (p *epollPoller) wait(timeout time.Duration) ([]pollEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
		if timeout > 0 && ms == 0 {
			ms = 1 // round sub-millisecond deadlines up, not down to busy-poll
		}
	}

	var raw [maxEvents]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var out []pollEvent
	for i := 0; i < n; i++ {
		if int(raw[i].Fd) == p.wakefd {
			p.drainWake()
			continue
		}
		var mask api.EventMask
		if raw[i].Events&unix.EPOLLIN != 0 {
			mask |= api.EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			mask |= api.EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= api.EventErr
		}
		out = append(out, pollEvent{fd: api.Descriptor(raw[i].Fd), mask: mask})
	}
	return out, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		return nil // counter saturated, a wakeup is already pending
	}
	return err
}

func (p *epollPoller) close() error {
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
