package barge

import (
	"errors"
	"time"
)

// ErrCancelled is returned by Handle.Wait when the synthesis was cancelled
// before it completed. It is an outcome, not a failure.
var ErrCancelled = errors.New("barge: synthesis cancelled")

// State of a synthesis handle. Running moves to exactly one of Completed or
// Cancelled and never changes again.
type State int32

const (
	Running State = iota
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config holds the barge-in thresholds.
type Config struct {
	// Threshold is the normalized RMS (0..1) above which a chunk counts as speech.
	Threshold float64
	// Grace is how long a cancelled synthesis may take to yield before it is abandoned.
	Grace time.Duration
}

// DefaultConfig matches the production telephone profile.
func DefaultConfig() Config {
	return Config{Threshold: 0.3, Grace: 50 * time.Millisecond}
}

// Events lets the host observe handle lifecycles.
type Events struct {
	// OnDone fires exactly once per handle with its final state. forced is
	// true when a cancelled synthesis had to be abandoned after the grace window.
	OnDone func(final State, forced bool)
}
