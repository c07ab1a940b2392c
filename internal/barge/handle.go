package barge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chadiek/voicebot/internal/logging"
)

// Func produces audio for one synthesis. It must watch ctx between internal
// chunks and return promptly once ctx is done.
type Func func(ctx context.Context) ([]byte, error)

// Handle is one in-flight cancellable synthesis.
type Handle struct {
	cancel   context.CancelFunc
	grace    time.Duration
	events   Events
	state    atomic.Int32
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	notify   sync.Once

	out []byte
	err error
}

// Start runs fn on its own goroutine under a context derived from parent.
func Start(parent context.Context, grace time.Duration, events Events, fn Func) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		cancel:  cancel,
		grace:   grace,
		events:  events,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.run(ctx, fn)
	return h
}

func (h *Handle) run(ctx context.Context, fn Func) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("synthesis panic", "panic", r)
			h.err = fmt.Errorf("barge: synthesis panic: %v", r)
			h.complete()
		}
	}()
	out, err := fn(ctx)
	h.out, h.err = out, err
	h.complete()
}

func (h *Handle) complete() {
	if h.state.CompareAndSwap(int32(Running), int32(Completed)) {
		h.cancel()
		h.fire(Completed, false)
	}
}

func (h *Handle) fire(s State, forced bool) {
	h.notify.Do(func() {
		if h.events.OnDone != nil {
			h.events.OnDone(s, forced)
		}
	})
}

// Cancel requests a graceful stop. It reports whether this call moved the
// handle to Cancelled; later calls and calls after completion are no-ops.
func (h *Handle) Cancel() bool {
	if !h.state.CompareAndSwap(int32(Running), int32(Cancelled)) {
		return false
	}
	h.cancel()
	h.stopOnce.Do(func() { close(h.stopped) })
	return true
}

// State returns the current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed when the synthesis goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the synthesis completes or is cancelled. A cancelled
// synthesis gets the grace window to yield; after that it is abandoned and
// Wait returns without it. Cancelled handles always return ErrCancelled.
func (h *Handle) Wait() ([]byte, error) {
	select {
	case <-h.done:
	case <-h.stopped:
		timer := time.NewTimer(h.grace)
		defer timer.Stop()
		select {
		case <-h.done:
			h.fire(Cancelled, false)
		case <-timer.C:
			logging.Warnw("synthesis ignored cancellation, abandoning", "grace", h.grace)
			h.fire(Cancelled, true)
		}
		return nil, ErrCancelled
	}
	if h.State() == Cancelled {
		h.fire(Cancelled, false)
		return nil, ErrCancelled
	}
	return h.out, h.err
}
