// Package transcript is the speech recognizer capability: providers that
// turn an audio segment into text, and the per-session Stream that decides
// when a segment is ready.
package transcript

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means no recognizer is loaded.
var ErrUnavailable = errors.New("transcript: recognizer unavailable")

// Result of one transcription. An empty Text means nothing was recognized.
// Language is what the backend detected; a mismatch with the hint is not an error.
type Result struct {
	Text     string
	Language string
	Duration time.Duration
}

// Recognizer transcribes mono samples normalized to [-1, 1].
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, language string) (Result, error)
}

// Prober is implemented by recognizers that can check reachability at boot.
type Prober interface {
	Probe(ctx context.Context) error
}
