package transcript

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
	"strings"
	"time"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
)

// WhisperClient posts WAV segments to a Whisper-compatible HTTP service
// (faster-whisper server, whisper.cpp server and the like).
type WhisperClient struct {
	HTTPClient *http.Client
	URL        string
	SampleRate int
	BeamSize   int
	Attempts   int
	Backoff    time.Duration
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

func NewWhisperClient(endpoint string, sampleRate int) *WhisperClient {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		URL:        endpoint,
		SampleRate: sampleRate,
		BeamSize:   5,
		Attempts:   3,
		Backoff:    250 * time.Millisecond,
	}
}

func (c *WhisperClient) endpoint(language string) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("whisper: bad url: %w", err)
	}
	q := u.Query()
	if language != "" {
		q.Set("language", language)
	}
	if c.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(c.BeamSize))
	}
	q.Set("vad_filter", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe wraps samples in a WAV and posts it. Transport errors and 5xx
// responses are retried with exponential backoff; 4xx responses are not.
func (c *WhisperClient) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	if c.URL == "" {
		return Result{}, ErrUnavailable
	}
	target, err := c.endpoint(language)
	if err != nil {
		return Result{}, err
	}
	wav := audio.EncodeWAV(audio.FromFloat32s(samples), c.SampleRate)

	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		res, retry, err := c.post(ctx, target, wav)
		if err == nil {
			if res.Duration == 0 {
				res.Duration = time.Duration(len(samples)) * time.Second / time.Duration(c.SampleRate)
			}
			return res, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		logging.Warnw("whisper request failed, retrying", "attempt", attempt, "err", err)
	}
	return Result{}, lastErr
}

func (c *WhisperClient) post(ctx context.Context, target string, wav []byte) (Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wav))
	if err != nil {
		return Result{}, false, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, !errors.Is(err, context.Canceled), fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, true, fmt.Errorf("whisper: status=%d body=%s", resp.StatusCode, string(b))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, false, fmt.Errorf("whisper: status=%d body=%s", resp.StatusCode, string(b))
	}
	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Result{}, false, fmt.Errorf("whisper: decode: %w", err)
	}
	return Result{
		Text:     strings.TrimSpace(wr.Text),
		Language: wr.Language,
		Duration: time.Duration(wr.Duration * float64(time.Second)),
	}, false, nil
}

// Probe checks that the service answers at all.
func (c *WhisperClient) Probe(ctx context.Context) error {
	if c.URL == "" {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: probe: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("whisper: probe status=%d", resp.StatusCode)
	}
	return nil
}
