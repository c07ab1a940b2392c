package agent

import (
	"context"
	"errors"

	"github.com/chadiek/voicebot/internal/barge"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/transcript"
)

// ErrEnded is returned by operations on a session after End.
var ErrEnded = errors.New("agent: session ended")

// Recognizer transcribes normalized float samples.
type Recognizer = transcript.Recognizer

// Synthesizer turns text into WAV bytes. Implementations must watch ctx
// between internal chunks and return ctx.Err() once it is done; any other
// failure should already be answered with substitute audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// TurnGenerator produces the next system line and end-of-call summaries.
// Failures must be errors, never an empty reply.
type TurnGenerator interface {
	Generate(ctx context.Context, history []llm.Turn, systemContext string) (string, error)
	Summarize(ctx context.Context, history []llm.Turn) (string, error)
}

// Mixer lays ambience under speech. It must not fail: unusable input comes
// back unchanged.
type Mixer interface {
	Mix(speech []byte, key string, level float64) []byte
	Available() map[string]bool
}

// Reply is one spoken line.
type Reply struct {
	Text       string
	Audio      []byte
	Recognized string // caller text that produced this reply, empty for greetings
	Cancelled  bool   // audio is the short silence substituted after a barge-in
}

// Summary is the outcome of End.
type Summary struct {
	Text       string
	Turns      int
	Transcript []llm.Turn
}

// Hooks observe a session. All are optional and are called synchronously
// from the goroutine that triggered them.
type Hooks struct {
	// OnBargeIn runs after the active synthesis was cancelled and the
	// recognition buffer cleared, before the interrupting chunk is buffered.
	OnBargeIn func()
	// OnSynthesisDone reports the final state of every synthesis handle once.
	OnSynthesisDone func(final barge.State, forced bool)
}
