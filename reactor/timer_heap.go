// File: reactor/timer_heap.go
// Author: momentics <momentics@gmail.com>
//
// Min-heap of pending timers ordered by deadline, ties broken by
// creation order so equal deadlines fire in scheduling order.

package reactor

import (
	"time"

	"github.com/netfuse/muxhttp/api"
)

type timerEntry struct {
	when      time.Time
	id        api.TimerID
	fn        func(error)
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].id < h[j].id
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
