package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// ElevenLabsClient streams raw PCM from the ElevenLabs HTTP streaming endpoint.
type ElevenLabsClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	VoiceID    string
	ModelID    string
	SampleRate int
}

func NewElevenLabsClient(apiKey, voiceID string, sampleRate int) *ElevenLabsClient {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &ElevenLabsClient{
		HTTPClient: &http.Client{},
		BaseURL:    elevenLabsBaseURL,
		APIKey:     apiKey,
		VoiceID:    voiceID,
		ModelID:    "eleven_flash_v2_5",
		SampleRate: sampleRate,
	}
}

func (e *ElevenLabsClient) Name() string { return "elevenlabs" }

// StreamPCM speaks text; voice overrides the configured voice id when set.
func (e *ElevenLabsClient) StreamPCM(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		voiceID := e.VoiceID
		if voice != "" {
			voiceID = voice
		}
		if e.APIKey == "" || voiceID == "" {
			errCh <- errors.New("elevenlabs: api key or voice id missing")
			return
		}
		if err := e.httpStream(ctx, text, voiceID, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabsClient) httpStream(ctx context.Context, text, voiceID string, pcmCh chan<- []byte) error {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("elevenlabs: bad base url: %w", err)
	}
	u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream"
	q := u.Query()
	q.Set("output_format", "pcm_"+strconv.Itoa(e.SampleRate))
	// 0..4, lower favours latency over quality
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.ModelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: http stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	first := true
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if first {
				logging.Debugw("elevenlabs: receiving audio", "first_chunk_bytes", n)
				first = false
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", rerr)
		}
	}
}
