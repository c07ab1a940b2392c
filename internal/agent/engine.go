package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/barge"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
	"github.com/chadiek/voicebot/internal/mixer"
	"github.com/chadiek/voicebot/internal/profile"
	"github.com/chadiek/voicebot/internal/transcript"
)

// Loaders build the engine's capabilities. A loader returning nil, nil
// means the capability is not configured. A nil loader is the same.
type Loaders struct {
	Recognizer  func(ctx context.Context) (Recognizer, error)
	Synthesizer func(ctx context.Context) (Synthesizer, error)
	Generator   func(ctx context.Context) (TurnGenerator, error)
	Mixer       func(ctx context.Context) (Mixer, error)
}

// Config holds the per-session defaults applied by CreateSession.
type Config struct {
	Company           string
	Stream            transcript.StreamConfig
	Barge             barge.Config
	Voice             string
	Ambience          string
	AmbienceLevel     float64
	AmbienceEnabled   bool
	SampleRate        int
	GenerationTimeout time.Duration
	HistoryWindow     int
	ProbeTimeout      time.Duration
}

// DefaultConfig is a 30 s generation ceiling over a 20-turn window.
func DefaultConfig() Config {
	return Config{
		Stream:            transcript.DefaultStreamConfig(),
		Barge:             barge.DefaultConfig(),
		Ambience:          "office",
		AmbienceLevel:     mixer.DefaultLevel,
		AmbienceEnabled:   true,
		SampleRate:        audio.SampleRate,
		GenerationTimeout: 30 * time.Second,
		HistoryWindow:     20,
		ProbeTimeout:      5 * time.Second,
	}
}

// Status reports which capabilities are loaded and answered their probe.
type Status struct {
	Recognizer  bool `json:"recognizer"`
	Synthesizer bool `json:"synthesizer"`
	Generator   bool `json:"generator"`
	Mixer       bool `json:"mixer"`
}

// TotalFailure is true when no speech capability is usable at all.
func (s Status) TotalFailure() bool {
	return !s.Recognizer && !s.Synthesizer && !s.Generator
}

// SessionOptions are per-call choices sent with the start record.
type SessionOptions struct {
	Voice    string
	Ambience string
	Hooks    Hooks
}

// Engine loads the capabilities once and creates sessions over them.
// Sessions share only the read-only capability singletons.
type Engine struct {
	cfg      Config
	loaders  Loaders
	profiles *profile.Catalog
	tracer   trace.Tracer

	initOnce sync.Once
	mu       sync.RWMutex
	rec      Recognizer
	synth    Synthesizer
	gen      TurnGenerator
	mix      Mixer
	status   Status
	closed   bool
}

func NewEngine(cfg Config, profiles *profile.Catalog, loaders Loaders) *Engine {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = def.GenerationTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.Barge.Grace <= 0 {
		cfg.Barge.Grace = def.Barge.Grace
	}
	if profiles == nil {
		profiles = profile.NewCatalog("")
	}
	return &Engine{
		cfg:      cfg,
		loaders:  loaders,
		profiles: profiles,
		tracer:   otel.Tracer("github.com/chadiek/voicebot/internal/agent"),
	}
}

// Profiles is the catalog sessions are created from.
func (e *Engine) Profiles() *profile.Catalog { return e.profiles }

// Initialize loads every capability concurrently, once. Each load fails on
// its own: a failed capability is left out and the engine runs degraded.
func (e *Engine) Initialize(ctx context.Context) Status {
	e.initOnce.Do(func() {
		var (
			g  errgroup.Group
			st Status
		)
		g.Go(func() error {
			v, ok := load(ctx, e.cfg.ProbeTimeout, metrics.Recognizer, e.loaders.Recognizer)
			e.mu.Lock()
			e.rec, st.Recognizer = v, ok
			e.mu.Unlock()
			return nil
		})
		g.Go(func() error {
			v, ok := load(ctx, e.cfg.ProbeTimeout, metrics.Synthesizer, e.loaders.Synthesizer)
			e.mu.Lock()
			e.synth, st.Synthesizer = v, ok
			e.mu.Unlock()
			return nil
		})
		g.Go(func() error {
			v, ok := load(ctx, e.cfg.ProbeTimeout, metrics.Generator, e.loaders.Generator)
			e.mu.Lock()
			e.gen, st.Generator = v, ok
			e.mu.Unlock()
			return nil
		})
		g.Go(func() error {
			v, ok := load(ctx, e.cfg.ProbeTimeout, "mixer", e.loaders.Mixer)
			e.mu.Lock()
			e.mix, st.Mixer = v, ok
			e.mu.Unlock()
			return nil
		})
		_ = g.Wait()

		e.mu.Lock()
		e.status = st
		e.mu.Unlock()
		if st.TotalFailure() {
			logging.Warnw("no speech capability available, callers will be transferred", "status", st)
		} else {
			logging.Infow("engine initialized", "status", st)
		}
	})
	return e.Status()
}

// load runs loader and probes the result when it supports probing. A value
// that fails its probe is kept, since the endpoint may come up later, but is
// reported as not ready.
func load[T any](ctx context.Context, probeTimeout time.Duration, name string, loader func(context.Context) (T, error)) (T, bool) {
	var zero T
	if loader == nil {
		logging.Warnw("capability not configured", "capability", name)
		return zero, false
	}
	v, err := loader(ctx)
	if err != nil {
		logging.Errorw("capability failed to load", "capability", name, "err", err)
		return zero, false
	}
	if any(v) == nil {
		logging.Warnw("capability not configured", "capability", name)
		return zero, false
	}
	p, ok := any(v).(transcript.Prober)
	if !ok {
		return v, true
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := p.Probe(pctx); err != nil {
		logging.Warnw("capability probe failed, running degraded", "capability", name, "err", err)
		return v, false
	}
	return v, true
}

// Status of the last Initialize.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// TotalFailure is true when Initialize found no usable speech capability.
func (e *Engine) TotalFailure() bool { return e.Status().TotalFailure() }

// Ambience reports the ambience keys sessions can choose from.
func (e *Engine) Ambience() map[string]bool {
	e.mu.RLock()
	m := e.mix
	e.mu.RUnlock()
	if m == nil {
		return map[string]bool{mixer.None: true}
	}
	return m.Available()
}

// CreateSession builds a session for channelID. It does no I/O. An empty or
// unknown industryKey selects the default profile.
func (e *Engine) CreateSession(channelID, industryKey string, opts SessionOptions) *Session {
	p, ok := e.profiles.Lookup(industryKey)
	if !ok && industryKey != "" {
		logging.Warnw("unknown profile, using default", "requested", industryKey, "profile", p.Key, "channel.id", channelID)
	}

	e.mu.RLock()
	rec, synth, gen, mix := e.rec, e.synth, e.gen, e.mix
	e.mu.RUnlock()

	voice := opts.Voice
	if voice == "" {
		voice = e.cfg.Voice
	}

	s := &Session{
		id:            channelID,
		profile:       p,
		systemContext: profile.SystemPrompt(p, e.cfg.Company),
		stream:        transcript.NewStream(rec, barge.NewDetector(e.cfg.Barge.Threshold), e.cfg.Stream),
		gen:           gen,
		synth:         synth,
		mixer:         mix,
		tracer:        e.tracer,
		hooks:         opts.Hooks,
		voice:         voice,
		ambience:      e.ambienceFor(opts.Ambience),
		level:         e.cfg.AmbienceLevel,
		sampleRate:    e.cfg.SampleRate,
		grace:         e.cfg.Barge.Grace,
		genTimeout:    e.cfg.GenerationTimeout,
		window:        e.cfg.HistoryWindow,
		bargeIn:       true,
	}
	return s
}

func (e *Engine) ambienceFor(requested string) string {
	if !e.cfg.AmbienceEnabled {
		return mixer.None
	}
	if requested == mixer.NoneAlias {
		return mixer.None
	}
	if requested != "" {
		if _, ok := e.Ambience()[requested]; ok {
			return requested
		}
		logging.Debugw("unknown ambience, using default", "requested", requested, "default", e.cfg.Ambience)
	}
	return e.cfg.Ambience
}

// Shutdown releases the capabilities that hold resources. Sessions in
// flight are left to their owners.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	caps := []any{e.rec, e.synth, e.gen, e.mix}
	e.rec, e.synth, e.gen, e.mix = nil, nil, nil, nil
	e.status = Status{}
	e.mu.Unlock()

	var errs []error
	for _, c := range caps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	logging.Infow("engine shut down")
	return errors.Join(errs...)
}
