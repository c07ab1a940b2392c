package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/metrics"
)

// Config for an OpenAI-compatible chat endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client generates replies and summaries through the chat completions API.
// It is safe for concurrent use.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func toMessages(history []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		role := openai.ChatMessageRoleAssistant
		if t.Role == RoleCaller {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return out
}

// Generate returns the next system line for history under systemContext.
// Every failure wraps ErrUnavailable; timeouts also match context.DeadlineExceeded.
func (c *Client) Generate(ctx context.Context, history []Turn, systemContext string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemContext + phoneRules,
	})
	messages = append(messages, toMessages(history)...)

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        0.9,
	})
}

// Summarize condenses a finished call into a few lines.
func (c *Client) Summarize(ctx context.Context, history []Turn) (string, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summaryInstruction},
			{Role: openai.ChatMessageRoleUser, Content: RenderTranscript(history)},
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer metrics.ObserveSince(metrics.Generator, time.Now())

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status=%d: %w", ErrUnavailable, apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w: no choices", ErrUnavailable, ErrEmptyReply)
	}
	text := Sanitize(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, ErrEmptyReply)
	}
	return text, nil
}

// Probe lists the endpoint's models. An unreachable endpoint is an error;
// a missing model is only logged, since it may be pulled later.
func (c *Client) Probe(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: list models: %w", ErrUnavailable, err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	logging.Warnw("llm model not served by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}
