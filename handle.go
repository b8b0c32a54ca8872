package svckit

import (
	"sync"
	"sync/atomic"
)

// Handle is the cooperation point between the lifecycle machinery and a
// running callback. The machinery requests a stop through it; the callback
// observes the request and winds down on its own. Both views are safe for
// concurrent use.
type Handle struct {
	stop atomic.Bool
	done chan struct{}
	once sync.Once
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// StopRequested reports whether a stop has been requested. Polling callbacks
// check it once per work unit.
func (h *Handle) StopRequested() bool {
	return h.stop.Load()
}

// Done returns a channel that is closed when a stop is requested, for
// callbacks structured around select.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// requestStop flips the stop flag and closes Done. Idempotent.
func (h *Handle) requestStop() {
	h.once.Do(func() {
		h.stop.Store(true)
		close(h.done)
	})
}
