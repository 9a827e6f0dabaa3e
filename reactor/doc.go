// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides a serial event loop satisfying api.Reactor:
// deferred task posting, single-shot timers and per-direction socket
// readiness waits, all dispatched on one dedicated goroutine. The socket
// backend is epoll on Linux; other platforms get tasks and timers only.
package reactor
