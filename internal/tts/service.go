// Package tts is the speech synthesizer capability. Providers stream raw
// PCM; Service collects it into a WAV, checking for cancellation between
// chunks, and substitutes silence when a provider is missing or fails.
package tts

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
)

// ErrUnavailable means no synthesizer provider is loaded.
var ErrUnavailable = errors.New("tts: synthesizer unavailable")

// Provider streams s16le mono PCM at the provider's configured rate. Both
// channels are closed when the stream ends.
type Provider interface {
	Name() string
	StreamPCM(ctx context.Context, text, voice string) (<-chan []byte, <-chan error)
}

// Silence lengths substituted for missing audio.
const (
	silencePerChar = 50 * time.Millisecond
	silenceOnError = time.Second
	silenceOnEmpty = 500 * time.Millisecond
)

// Service turns text into WAV bytes. It is safe for concurrent use; at most
// the configured number of syntheses run on the provider at once.
type Service struct {
	provider   Provider
	sampleRate int
	sem        *semaphore.Weighted
}

// NewService wraps provider. A nil provider yields a service that only
// produces silence sized to the text.
func NewService(provider Provider, sampleRate int, workers int64) *Service {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{provider: provider, sampleRate: sampleRate, sem: semaphore.NewWeighted(workers)}
}

// Available reports whether a real provider backs the service.
func (s *Service) Available() bool { return s != nil && s.provider != nil }

// SampleRate of the produced WAV.
func (s *Service) SampleRate() int { return s.sampleRate }

// Synthesize returns WAV bytes for text. The only error it returns is the
// context's: cancellation must stay distinguishable from a provider failure,
// which is logged and answered with silence.
func (s *Service) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if s.provider == nil {
		metrics.Fallback("synthesizer_unavailable")
		return audio.Silence(time.Duration(utf8.RuneCountInString(text))*silencePerChar, s.sampleRate), nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	defer metrics.ObserveSince(metrics.Synthesizer, time.Now())

	pcmCh, errCh := s.provider.StreamPCM(ctx, text, voice)
	var (
		pcm     []byte
		lastErr error
	)
	for pcmCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			pcm = append(pcm, b...)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				lastErr = err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastErr != nil && len(pcm) == 0 {
		logging.Errorw("synthesis failed, substituting silence", "provider", s.provider.Name(), "err", lastErr)
		metrics.Fallback("synthesizer_error")
		return audio.Silence(silenceOnError, s.sampleRate), nil
	}
	if lastErr != nil {
		logging.Warnw("synthesis ended with error after partial audio", "provider", s.provider.Name(), "err", lastErr, "bytes", len(pcm))
	}
	if len(pcm) == 0 {
		metrics.Fallback("synthesizer_empty")
		return audio.Silence(silenceOnEmpty, s.sampleRate), nil
	}
	if len(pcm)%audio.BytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.EncodeWAV(pcm, s.sampleRate), nil
}
