package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/transcript"
)

type fakeRecognizer struct {
	text  string
	calls atomic.Int32
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, samples []float32, language string) (transcript.Result, error) {
	f.calls.Add(1)
	return transcript.Result{Text: f.text, Language: language}, nil
}

type recognizerFunc func(ctx context.Context, samples []float32, language string) (transcript.Result, error)

func (f recognizerFunc) Transcribe(ctx context.Context, samples []float32, language string) (transcript.Result, error) {
	return f(ctx, samples, language)
}

type fakeSynth struct {
	block   bool // wait for ctx instead of returning
	started chan struct{}
	calls   atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return audio.EncodeWAV(audio.Bytes(constant(1600, 1000)), audio.SampleRate), nil
}

type fakeGen struct {
	reply   string
	err     error
	block   bool
	summary string

	mu        sync.Mutex
	windows   [][]llm.Turn
	summaries [][]llm.Turn
	contexts  []string
}

func (f *fakeGen) Generate(ctx context.Context, history []llm.Turn, systemContext string) (string, error) {
	f.mu.Lock()
	f.windows = append(f.windows, history)
	f.contexts = append(f.contexts, systemContext)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeGen) Summarize(ctx context.Context, history []llm.Turn) (string, error) {
	f.mu.Lock()
	f.summaries = append(f.summaries, history)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.summary, f.err
}

func (f *fakeGen) lastWindow() []llm.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.windows) == 0 {
		return nil
	}
	return f.windows[len(f.windows)-1]
}

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// quiet returns d of low-level PCM that the detector treats as silence.
func quiet(d time.Duration) []byte {
	return audio.Bytes(constant(audio.ByteLen(d, audio.SampleRate)/2, 50))
}

// loud returns d of PCM far above the speech threshold.
func loud(d time.Duration) []byte {
	return audio.Bytes(constant(audio.ByteLen(d, audio.SampleRate)/2, 20000))
}

type deps struct {
	rec   Recognizer
	synth Synthesizer
	gen   TurnGenerator
	mix   Mixer
}

func newTestEngine(d deps, mutate func(*Config)) *Engine {
	cfg := DefaultConfig()
	cfg.Barge.Grace = 30 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	loaders := Loaders{}
	if d.rec != nil {
		loaders.Recognizer = func(context.Context) (Recognizer, error) { return d.rec, nil }
	}
	if d.synth != nil {
		loaders.Synthesizer = func(context.Context) (Synthesizer, error) { return d.synth, nil }
	}
	if d.gen != nil {
		loaders.Generator = func(context.Context) (TurnGenerator, error) { return d.gen, nil }
	}
	if d.mix != nil {
		loaders.Mixer = func(context.Context) (Mixer, error) { return d.mix, nil }
	}
	e := NewEngine(cfg, nil, loaders)
	e.Initialize(context.Background())
	return e
}
