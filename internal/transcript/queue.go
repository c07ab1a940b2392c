package transcript

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chadiek/voicebot/internal/metrics"
)

// Queue serializes access to a recognizer that is not reentrant. Waiting
// callers give up when their context ends.
type Queue struct {
	next Recognizer
	sem  *semaphore.Weighted
}

// NewQueue allows at most workers concurrent transcriptions on next.
func NewQueue(next Recognizer, workers int64) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{next: next, sem: semaphore.NewWeighted(workers)}
}

func (q *Queue) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer q.sem.Release(1)
	defer metrics.ObserveSince(metrics.Recognizer, time.Now())
	return q.next.Transcribe(ctx, samples, language)
}

// Probe forwards to the wrapped recognizer when it supports probing.
func (q *Queue) Probe(ctx context.Context) error {
	if p, ok := q.next.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}
