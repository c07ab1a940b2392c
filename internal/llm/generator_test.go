package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow(t *testing.T) {
	history := make([]Turn, 25)
	for i := range history {
		history[i] = Turn{Role: RoleCaller, Text: fmt.Sprint(i)}
	}
	w := Window(history, 20)
	assert.Len(t, w, 20)
	assert.Equal(t, "5", w[0].Text)
	assert.Equal(t, "24", w[19].Text)
	assert.Len(t, Window(history[:3], 20), 3)
	assert.Len(t, Window(history, 0), 25)
}

func TestFallbackFor(t *testing.T) {
	assert.Equal(t, FallbackTimeout, FallbackFor(fmt.Errorf("%w: %w", ErrUnavailable, context.DeadlineExceeded)))
	assert.Equal(t, FallbackHold, FallbackFor(fmt.Errorf("%w: %w", ErrUnavailable, ErrEmptyReply)))
	assert.Equal(t, FallbackHold, FallbackFor(ErrUnavailable))
	assert.Equal(t, FallbackHold, FallbackFor(errors.New("dial tcp: refused")))
	for _, line := range []string{FallbackTimeout, FallbackHold, FallbackTransfer} {
		assert.NotEmpty(t, line)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Hallo Welt", Sanitize("  **Hallo** `Welt`# "))
}

func TestRenderTranscript(t *testing.T) {
	assert.Equal(t, "", RenderTranscript(nil))
	assert.Equal(t, "Praxis: a\nAnrufer: b", RenderTranscript([]Turn{{RoleSystem, "a"}, {RoleCaller, "b"}}))
}
