package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/infra/storage"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
)

// emitter is the outbound half of a call socket. send writes a record and
// its optional WAV frame without interleaving other writes.
type emitter interface {
	send(record any, wav []byte) error
	// clear tells the far end to stop playing queued audio.
	clear()
	close()
}

type job func(ctx context.Context)

// call drives one session over one socket. Audio is ingested on the read
// goroutine so barge-in is checked while a reply is being produced.
// Finished utterances are transcribed on a per-call recognition goroutine
// and turns run in order on a single responder goroutine, so the read loop
// never waits on a capability.
type call struct {
	h       *Handler
	channel string
	out     emitter
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	mu       sync.Mutex
	sess     *agent.Session
	finished bool
	jobs     chan job
	done     chan struct{}
	segments chan []byte
	recDone  chan struct{}

	finishOnce sync.Once
}

func (h *Handler) newCall(parent context.Context, channel string, out emitter) *call {
	ctx, cancel := context.WithCancel(parent)
	return &call{
		h:       h,
		channel: channel,
		out:     out,
		ctx:     logging.WithFields(ctx, "channel.id", channel),
		cancel:  cancel,
		started: time.Now().UTC(),
		jobs:     make(chan job, jobQueue),
		done:     make(chan struct{}),
		segments: make(chan []byte, segmentQueue),
		recDone:  make(chan struct{}),
	}
}

// begin starts the responder and the recognizer. It is called once the
// call is registered.
func (c *call) begin() {
	go c.respond()
	go c.recognize()
	if c.h.closing.Load() {
		go c.finish("shutdown")
	}
}

func (c *call) respond() {
	defer close(c.done)
	for j := range c.jobs {
		if c.ctx.Err() != nil {
			continue
		}
		c.run(j)
	}
}

func (c *call) recognize() {
	defer close(c.recDone)
	for segment := range c.segments {
		if c.ctx.Err() != nil {
			continue
		}
		c.run(func(ctx context.Context) {
			s := c.session()
			if s == nil {
				return
			}
			if text := s.Recognize(ctx, segment); text != "" {
				c.respondTo(s, text)
			}
		})
	}
}

func (c *call) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorwCtx(c.ctx, "call job panicked", "panic", r)
		}
	}()
	j(c.ctx)
}

func (c *call) enqueue(j job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	select {
	case c.jobs <- j:
	default:
		logging.WarnwCtx(c.ctx, "call job queue full, dropping turn")
	}
}

func (c *call) session() *agent.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// open creates the session if there is none yet. It reports whether this
// call created it.
func (c *call) open(profileKey string, opts agent.SessionOptions) (*agent.Session, bool) {
	c.mu.Lock()
	if c.sess != nil || c.finished {
		s := c.sess
		c.mu.Unlock()
		return s, false
	}
	opts.Hooks.OnBargeIn = c.bargedIn
	s := c.h.engine.CreateSession(c.channel, profileKey, opts)
	c.sess = s
	c.mu.Unlock()

	metrics.SessionOpened()
	logging.InfowCtx(c.ctx, "session opened", "profile", s.Profile().Key)
	c.h.hub.Publish(Event{Type: EventSessionStarted, Channel: c.channel, Profile: s.Profile().Key})
	return s, true
}

// start opens the session and greets. A repeated start greets again.
func (c *call) start(profileKey string, opts agent.SessionOptions) {
	s, _ := c.open(profileKey, opts)
	if s == nil {
		return
	}
	c.greet(s)
}

func (c *call) greet(s *agent.Session) {
	c.enqueue(func(ctx context.Context) {
		reply, err := s.Start(ctx)
		if err != nil {
			return
		}
		c.emit(TypeGreeting, reply, s.Profile().Key)
	})
}

// ensure returns the session, starting one with the default profile when
// the client sent audio or control before start.
func (c *call) ensure() *agent.Session {
	s, created := c.open("", agent.SessionOptions{})
	if created {
		logging.InfowCtx(c.ctx, "no start record, session auto-started")
		c.greet(s)
	}
	return s
}

func (c *call) audio(chunk []byte) {
	s := c.ensure()
	if s == nil {
		return
	}
	segment, _ := s.Ingest(c.ctx, chunk)
	if segment == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	select {
	case c.segments <- segment:
	default:
		logging.WarnwCtx(c.ctx, "recognition backlog full, dropping utterance", "bytes", len(segment))
	}
}

func (c *call) respondTo(s *agent.Session, text string) {
	c.enqueue(func(ctx context.Context) {
		reply, ok := s.Respond(ctx, text)
		if ok {
			c.emit(TypeResponse, reply, "")
		}
	})
}

func (c *call) announce(text string) {
	s := c.ensure()
	if s == nil || strings.TrimSpace(text) == "" {
		return
	}
	c.enqueue(func(ctx context.Context) {
		c.emit(TypeAnnounce, s.SendText(ctx, text), "")
	})
}

func (c *call) configure(bargeIn *bool) {
	s := c.ensure()
	if s == nil {
		return
	}
	if bargeIn != nil {
		s.SetBargeIn(*bargeIn)
		logging.InfowCtx(c.ctx, "barge-in configured", "enabled", *bargeIn)
	}
	if err := c.out.send(configAck{Type: TypeConfigAck, BargeIn: s.BargeInEnabled()}, nil); err != nil {
		logging.DebugwCtx(c.ctx, "config ack not delivered", "err", err)
	}
}

// dtmf answers a key press with the profile's menu entry as if the caller
// had said it.
func (c *call) dtmf(digit string) {
	s := c.ensure()
	if s == nil {
		return
	}
	for _, m := range s.Profile().Menu {
		if m.Digit == digit {
			logging.InfowCtx(c.ctx, "menu key pressed", "digit", digit, "label", m.Label)
			c.respondTo(s, m.Label)
			return
		}
	}
	logging.DebugwCtx(c.ctx, "key without menu entry", "digit", digit)
}

func (c *call) bargedIn() {
	c.out.clear()
	c.h.hub.Publish(Event{Type: EventBargeIn, Channel: c.channel})
}

func (c *call) emit(kind string, reply agent.Reply, profileKey string) {
	if c.ctx.Err() != nil {
		return
	}
	rec := spokenRecord{
		Type:       kind,
		Channel:    c.channel,
		Text:       reply.Text,
		Recognized: reply.Recognized,
		Profile:    profileKey,
		Cancelled:  reply.Cancelled,
	}
	if err := c.out.send(rec, reply.Audio); err != nil {
		logging.WarnwCtx(c.ctx, "reply not delivered", "type", kind, "err", err)
	}
}

// finish ends the session, drains the responder, reports the result and
// closes the socket. Only the first call has an effect.
func (c *call) finish(reason string) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.finished = true
		s := c.sess
		close(c.jobs)
		close(c.segments)
		c.mu.Unlock()
		c.cancel()

		var sum agent.Summary
		if s != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.h.endWait)
			sum = s.End(ctx)
			cancel()
		}
		<-c.recDone
		<-c.done

		ended := endedRecord{Type: TypeEnded, Channel: c.channel, Summary: sum.Text, Turns: sum.Turns, Transcript: sum.Transcript}
		if ended.Transcript == nil {
			ended.Transcript = []llm.Turn{}
		}
		if err := c.out.send(ended, nil); err != nil {
			logging.DebugwCtx(c.ctx, "ended record not delivered", "err", err)
		}

		if s != nil {
			metrics.SessionClosed()
			c.save(s, sum)
			c.h.hub.Publish(Event{Type: EventSessionEnded, Channel: c.channel, Profile: s.Profile().Key, Turns: sum.Turns, Summary: sum.Text})
		}
		c.h.registry.remove(c.channel, c)
		c.out.close()
		logging.InfowCtx(c.ctx, "call finished", "reason", reason, "turns", sum.Turns)
	})
}

func (c *call) save(s *agent.Session, sum agent.Summary) {
	if c.h.sink == nil || sum.Turns == 0 {
		return
	}
	rec := storage.Record{
		ID:        uuid.NewString(),
		ChannelID: c.channel,
		Profile:   s.Profile().Key,
		Summary:   sum.Text,
		Turns:     sum.Transcript,
		StartedAt: c.started,
		EndedAt:   time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.h.endWait)
	defer cancel()
	if err := c.h.sink.Save(ctx, rec); err != nil {
		logging.ErrorwCtx(c.ctx, "transcript not saved", "err", err, "record", rec.ID)
		return
	}
	logging.DebugwCtx(c.ctx, "transcript saved", "record", rec.ID)
}
