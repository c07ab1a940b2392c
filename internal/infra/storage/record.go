// Package storage keeps finished call transcripts: a Redis index for recent
// calls and a Supabase bucket as the long-term archive.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/voicebot/internal/llm"
)

// ErrNotFound is returned when no transcript exists for an id.
var ErrNotFound = errors.New("storage: transcript not found")

// Record is one finished call.
type Record struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Profile   string     `json:"profile"`
	Summary   string     `json:"summary"`
	Turns     []llm.Turn `json:"turns"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
}

// Sink receives finished calls.
type Sink interface {
	Save(ctx context.Context, rec Record) error
}

// Multi saves to every sink and joins their errors. A failing sink does not
// stop the others.
type Multi []Sink

func (m Multi) Save(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
