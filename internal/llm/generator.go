// Package llm is the turn generator capability: an OpenAI-compatible chat
// client (Ollama, Cerebras, vLLM) plus the fixed lines spoken when it fails.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role of a conversation turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleSystem Role = "system"
)

// Turn is one utterance in a call.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	// ErrUnavailable means no reply could be produced: the generator is not
	// loaded, unreachable, timed out, or answered with nothing.
	ErrUnavailable = errors.New("llm: turn generator unavailable")
	// ErrEmptyReply is an ErrUnavailable whose cause is an empty completion.
	ErrEmptyReply = errors.New("llm: empty reply")
)

// Spoken when a reply cannot be generated.
const (
	FallbackTransfer = "Entschuldigung, ich habe gerade ein technisches Problem. Ich verbinde Sie mit einem Mitarbeiter."
	FallbackTimeout  = "Entschuldigung, das dauert gerade etwas länger. Einen Moment bitte."
	FallbackHold     = "Einen Moment bitte, ich verbinde Sie."
)

// FallbackFor picks the fixed line for a failed generation. FallbackTransfer
// is reserved for a generator that was never loaded.
func FallbackFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return FallbackTimeout
	}
	return FallbackHold
}

// phoneRules are appended to every system context.
const phoneRules = `

WICHTIG für dein Verhalten am Telefon:
- Antworte KURZ (1-3 Sätze). Kein Anrufer will lange Monologe.
- Benutze natürliche Füllwörter: "Ach so", "Alles klar", "Moment".
- Stelle eine Frage pro Antwort, nicht mehrere.
- Wenn du etwas nicht verstehst, frag höflich nach.
- Nenne NIE technische Details (API, Datenbank, etc.).
- Sprich wie eine echte Person, nicht wie ein Computer.`

const summaryInstruction = "Erstelle eine kurze Zusammenfassung dieses Telefonats. " +
	"Format: Anrufer, Anliegen, Ergebnis, ggf. Termin/Aktion. " +
	"Maximal 3-4 Zeilen. Sachlich und präzise."

var markdown = strings.NewReplacer("*", "", "#", "", "`", "")

// Sanitize strips markdown that a speech engine would read aloud.
func Sanitize(reply string) string {
	return strings.TrimSpace(markdown.Replace(reply))
}

// Window returns at most the n most recent turns. The result shares
// storage with history.
func Window(history []Turn, n int) []Turn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// RenderTranscript formats turns as speaker-labelled lines for the summary prompt.
func RenderTranscript(history []Turn) string {
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		if t.Role == RoleCaller {
			b.WriteString("Anrufer: ")
		} else {
			b.WriteString("Praxis: ")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
