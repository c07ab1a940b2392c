package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/barge"
	"github.com/chadiek/voicebot/internal/logging"
)

// StreamConfig bounds the accumulation buffer.
type StreamConfig struct {
	SampleRate int
	Language   string
	MinSegment time.Duration // never transcribe less than this
	MaxSegment time.Duration // always transcribe at this length
	TailWindow time.Duration // trailing audio checked for silence
}

// DefaultStreamConfig is 1 s minimum, 10 s cap and a 200 ms silence tail at 16 kHz.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate: audio.SampleRate,
		Language:   "de",
		MinSegment: time.Second,
		MaxSegment: 10 * time.Second,
		TailWindow: 200 * time.Millisecond,
	}
}

// Stream is one session's recognition buffer. Take and Reset may be called
// from different goroutines; the buffer is snapshotted and cleared before
// the recognizer runs so neither waits on a transcription.
type Stream struct {
	rec      Recognizer
	detector barge.Detector
	language string
	minBytes int
	maxBytes int
	tail     int

	mu  sync.Mutex
	buf []byte
}

// NewStream builds a stream over rec. A nil rec still buffers and clears on
// the usual triggers but never yields text.
func NewStream(rec Recognizer, detector barge.Detector, cfg StreamConfig) *Stream {
	def := DefaultStreamConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.MinSegment <= 0 {
		cfg.MinSegment = def.MinSegment
	}
	if cfg.MaxSegment < cfg.MinSegment {
		cfg.MaxSegment = def.MaxSegment
	}
	if cfg.TailWindow <= 0 {
		cfg.TailWindow = def.TailWindow
	}
	return &Stream{
		rec:      rec,
		detector: detector,
		language: cfg.Language,
		minBytes: audio.ByteLen(cfg.MinSegment, cfg.SampleRate),
		maxBytes: audio.ByteLen(cfg.MaxSegment, cfg.SampleRate),
		tail:     audio.ByteLen(cfg.TailWindow, cfg.SampleRate),
	}
}

// Feed is Take followed by Recognize. ran reports whether a segment was
// consumed; text may still be empty, which callers treat as noise.
func (s *Stream) Feed(ctx context.Context, chunk []byte) (text string, ran bool) {
	segment := s.Take(chunk)
	if segment == nil {
		return "", false
	}
	return s.Recognize(ctx, segment), true
}

// Take appends chunk and, once the buffer is at least the minimum segment
// and either its tail is silent or it hit the cap, hands back the buffered
// segment and starts a new one. It never blocks on recognition.
func (s *Stream) Take(chunk []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, chunk...)
	if len(s.buf) < s.minBytes {
		return nil
	}
	tail := s.buf[len(s.buf)-min(s.tail, len(s.buf)):]
	if !s.detector.IsSilent(tail) && len(s.buf) < s.maxBytes {
		return nil
	}
	segment := s.buf
	s.buf = nil
	return segment
}

// Recognize transcribes a segment returned by Take. Failures are logged and
// yield empty text.
func (s *Stream) Recognize(ctx context.Context, segment []byte) string {
	if s.rec == nil || len(segment) == 0 {
		return ""
	}
	res, err := s.rec.Transcribe(ctx, audio.Float32s(segment), s.language)
	if err != nil {
		logging.WarnwCtx(ctx, "transcription failed, segment dropped", "err", err, "bytes", len(segment))
		return ""
	}
	if res.Language != "" && s.language != "" && res.Language != s.language {
		logging.DebugwCtx(ctx, "recognizer detected another language", "hint", s.language, "detected", res.Language)
	}
	return res.Text
}

// HasSpeech is the stateless energy check; it does not look at the buffer.
func (s *Stream) HasSpeech(chunk []byte) bool { return s.detector.HasSpeech(chunk) }

// Reset drops everything buffered.
func (s *Stream) Reset() {
	s.mu.Lock()
	s.buf = nil
	s.mu.Unlock()
}

// Buffered is the number of bytes waiting for transcription.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
