package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/barge"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
	"github.com/chadiek/voicebot/internal/profile"
	"github.com/chadiek/voicebot/internal/transcript"
)

// Silence substituted for audio that could not be produced.
const (
	silenceCancelled   = 100 * time.Millisecond
	silencePerRune     = 50 * time.Millisecond
	silenceSynthFailed = time.Second
)

// Session runs one call: caller audio in, spoken replies out. Ingest never
// waits on a capability and may run concurrently with Recognize, Respond,
// Start and SendText so that caller speech can cancel a reply while it is
// being synthesized.
type Session struct {
	id            string
	profile       profile.Profile
	systemContext string

	stream *transcript.Stream
	gen    TurnGenerator
	synth  Synthesizer
	mixer  Mixer
	tracer trace.Tracer
	hooks  Hooks

	voice      string
	ambience   string
	level      float64
	sampleRate int
	grace      time.Duration
	genTimeout time.Duration
	window     int

	mu       sync.Mutex
	history  []llm.Turn
	speaking bool
	bargeIn  bool
	active   *barge.Handle
	closed   bool

	endOnce sync.Once
	result  Summary
}

// ID is the channel the session is attached to.
func (s *Session) ID() string { return s.id }

// Profile the session was created with.
func (s *Session) Profile() profile.Profile { return s.profile }

func (s *Session) logCtx(ctx context.Context) context.Context {
	return logging.WithFields(ctx, logging.SessionFields(s.id, s.profile.Key)...)
}

func (s *Session) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("channel.id", s.id),
		attribute.String("profile", s.profile.Key),
	))
}

// IsSpeaking reports whether a synthesis is in flight.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeInEnabled reports whether caller speech cancels replies.
func (s *Session) BargeInEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bargeIn
}

// SetBargeIn turns barge-in on or off.
func (s *Session) SetBargeIn(on bool) {
	s.mu.Lock()
	s.bargeIn = on
	s.mu.Unlock()
}

// History returns a copy of every turn so far.
func (s *Session) History() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Turn(nil), s.history...)
}

// Buffered is the amount of caller audio waiting for recognition.
func (s *Session) Buffered() int { return s.stream.Buffered() }

func (s *Session) ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// appendTurn records a turn unless End has already taken its snapshot.
func (s *Session) appendTurn(role llm.Role, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.history = append(s.history, llm.Turn{Role: role, Text: text})
	return true
}

// Start speaks the profile greeting and records it as the first system turn.
// Calling it twice greets twice.
func (s *Session) Start(ctx context.Context) (Reply, error) {
	if s.ended() {
		return Reply{}, ErrEnded
	}
	ctx = s.logCtx(ctx)
	ctx, span := s.startSpan(ctx, "session.start")
	defer span.End()

	greeting := s.profile.Greeting
	if !s.appendTurn(llm.RoleSystem, greeting) {
		return Reply{}, ErrEnded
	}
	logging.InfowCtx(ctx, "session greeting", "text", greeting)
	wav, cancelled := s.speak(ctx, greeting)
	return Reply{Text: greeting, Audio: wav, Cancelled: cancelled}, nil
}

// Ingest runs the barge-in check on chunk and then buffers it. It returns
// a completed utterance segment for Recognize, nil while still buffering,
// and whether this chunk cancelled an in-flight reply.
func (s *Session) Ingest(ctx context.Context, chunk []byte) (segment []byte, barged bool) {
	if len(chunk) == 0 || s.ended() {
		return nil, false
	}
	ctx = s.logCtx(ctx)

	s.mu.Lock()
	var h *barge.Handle
	if s.speaking && s.bargeIn && s.stream.HasSpeech(chunk) {
		h = s.active
		s.active = nil
		s.speaking = false
		barged = true
	}
	s.mu.Unlock()

	if barged {
		if h != nil {
			h.Cancel()
		}
		s.stream.Reset()
		metrics.BargeIn()
		logging.InfowCtx(ctx, "barge-in: caller speech cancelled reply")
		if s.hooks.OnBargeIn != nil {
			s.hooks.OnBargeIn()
		}
	}

	return s.stream.Take(chunk), barged
}

// Recognize transcribes a segment returned by Ingest. Empty text is noise.
func (s *Session) Recognize(ctx context.Context, segment []byte) string {
	if len(segment) == 0 || s.ended() {
		return ""
	}
	return strings.TrimSpace(s.stream.Recognize(s.logCtx(ctx), segment))
}

// Respond answers recognized caller text: caller turn, generated reply,
// system turn, synthesis. Blank text is noise and yields nothing.
func (s *Session) Respond(ctx context.Context, recognized string) (Reply, bool) {
	recognized = strings.TrimSpace(recognized)
	if recognized == "" || s.ended() {
		return Reply{}, false
	}
	ctx = s.logCtx(ctx)
	ctx, span := s.startSpan(ctx, "session.respond")
	defer span.End()

	logging.InfowCtx(ctx, "caller turn", "text", recognized)
	if !s.appendTurn(llm.RoleCaller, recognized) {
		return Reply{}, false
	}

	reply := s.generate(ctx, span)
	if !s.appendTurn(llm.RoleSystem, reply) {
		logging.InfowCtx(ctx, "session ended during generation, reply dropped")
		return Reply{}, false
	}
	logging.InfowCtx(ctx, "system turn", "text", reply)

	wav, cancelled := s.speak(ctx, reply)
	return Reply{Text: reply, Audio: wav, Recognized: recognized, Cancelled: cancelled}, true
}

// ReceiveAudio is Ingest, Recognize and Respond on the same goroutine.
func (s *Session) ReceiveAudio(ctx context.Context, chunk []byte) (Reply, bool) {
	segment, _ := s.Ingest(ctx, chunk)
	recognized := s.Recognize(ctx, segment)
	if recognized == "" {
		return Reply{}, false
	}
	return s.Respond(ctx, recognized)
}

// SendText speaks text without recognition or generation and without
// touching the history. Caller speech can still cancel it.
func (s *Session) SendText(ctx context.Context, text string) Reply {
	ctx = s.logCtx(ctx)
	ctx, span := s.startSpan(ctx, "session.announce")
	defer span.End()
	wav, cancelled := s.speak(ctx, text)
	return Reply{Text: text, Audio: wav, Cancelled: cancelled}
}

func (s *Session) generate(ctx context.Context, span trace.Span) string {
	if s.gen == nil {
		metrics.Fallback("generator_unavailable")
		return llm.FallbackTransfer
	}
	s.mu.Lock()
	window := append([]llm.Turn(nil), llm.Window(s.history, s.window)...)
	s.mu.Unlock()

	gctx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	reply, err := s.gen.Generate(gctx, window, s.systemContext)
	if err == nil {
		if reply = llm.Sanitize(reply); reply != "" {
			return reply
		}
		err = llm.ErrEmptyReply
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "generation failed")
	logging.WarnwCtx(ctx, "turn generation failed, using fallback line", "err", err)
	metrics.Fallback("generator_error")
	return llm.FallbackFor(err)
}

// speak synthesizes and mixes text under a cancellable handle that becomes
// the session's active synthesis. A newer synthesis supersedes an older
// one. Cancelled syntheses come back as a short silence clip.
func (s *Session) speak(ctx context.Context, text string) ([]byte, bool) {
	ctx, span := s.startSpan(ctx, "session.synthesize")
	defer span.End()

	h := barge.Start(ctx, s.grace, barge.Events{OnDone: s.synthesisDone}, func(ctx context.Context) ([]byte, error) {
		wav, err := s.synthesize(ctx, text)
		if err != nil {
			return nil, err
		}
		if s.mixer == nil {
			return wav, nil
		}
		return s.mixer.Mix(wav, s.ambience, s.level), nil
	})

	s.mu.Lock()
	prev := s.active
	s.active = h
	s.speaking = true
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	wav, err := h.Wait()

	s.mu.Lock()
	if s.active == h {
		s.active = nil
		s.speaking = false
	}
	s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, barge.ErrCancelled) {
			logging.WarnwCtx(ctx, "synthesis stopped", "err", err)
		}
		span.SetAttributes(attribute.Bool("cancelled", true))
		return audio.Silence(silenceCancelled, s.sampleRate), true
	}
	return wav, false
}

func (s *Session) synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.synth == nil {
		metrics.Fallback("synthesizer_unavailable")
		return audio.Silence(time.Duration(utf8.RuneCountInString(text))*silencePerRune, s.sampleRate), nil
	}
	wav, err := s.synth.Synthesize(ctx, text, s.voice)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logging.ErrorwCtx(ctx, "synthesizer failed, substituting silence", "err", err)
		metrics.Fallback("synthesizer_error")
		return audio.Silence(silenceSynthFailed, s.sampleRate), nil
	}
	return wav, nil
}

func (s *Session) synthesisDone(final barge.State, forced bool) {
	outcome := final.String()
	if forced {
		outcome = "abandoned"
	}
	metrics.SynthesisOutcome(outcome)
	if s.hooks.OnSynthesisDone != nil {
		s.hooks.OnSynthesisDone(final, forced)
	}
}

// End cancels any reply in flight and, when at least two turns exist, asks
// the generator for a summary. A failed or timed-out summary is empty. End
// is idempotent; later and concurrent calls return the first result.
func (s *Session) End(ctx context.Context) Summary {
	s.endOnce.Do(func() {
		s.mu.Lock()
		h := s.active
		s.active = nil
		s.speaking = false
		s.closed = true
		history := append([]llm.Turn(nil), s.history...)
		s.mu.Unlock()

		if h != nil {
			h.Cancel()
		}
		s.stream.Reset()

		ctx = s.logCtx(ctx)
		ctx, span := s.startSpan(ctx, "session.end")
		defer span.End()
		span.SetAttributes(attribute.Int("turns", len(history)))

		text := s.summarize(ctx, history)
		s.result = Summary{Text: text, Turns: len(history), Transcript: history}
		logging.InfowCtx(ctx, "session ended", "turns", len(history), "summary_chars", len(text))
	})
	return s.result
}

func (s *Session) summarize(ctx context.Context, history []llm.Turn) string {
	if len(history) < 2 || s.gen == nil {
		return ""
	}
	sctx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	text, err := s.gen.Summarize(sctx, history)
	if err != nil {
		logging.WarnwCtx(ctx, "summary failed", "err", err)
		metrics.Fallback("summary_error")
		return ""
	}
	return llm.Sanitize(text)
}
