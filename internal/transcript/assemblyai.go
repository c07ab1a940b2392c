package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
)

const assemblyAIStreamURL = "wss://streaming.assemblyai.com/v3/ws"

// chunkDuration is the upload frame size; the streaming API rejects frames
// shorter than 50 ms or longer than 1 s.
const chunkDuration = 100 * time.Millisecond

// AssemblyAIClient transcribes a finished segment over the AssemblyAI
// streaming API: one socket per segment, upload, Terminate, collect turns.
type AssemblyAIClient struct {
	APIKey     string
	URL        string
	SampleRate int
	Dialer     *websocket.Dialer
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	TurnOrder  int    `json:"turn_order"`
	EndOfTurn  bool   `json:"end_of_turn"`
	Language   string `json:"language_code,omitempty"`
}

type terminationMessage struct {
	Type                 string  `json:"type"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewAssemblyAIClient(apiKey string, sampleRate int) *AssemblyAIClient {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &AssemblyAIClient{
		APIKey:     apiKey,
		URL:        assemblyAIStreamURL,
		SampleRate: sampleRate,
		Dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *AssemblyAIClient) dial(ctx context.Context, language string) (*websocket.Conn, error) {
	if c.APIKey == "" {
		return nil, ErrUnavailable
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: bad url: %w", err)
	}
	params := u.Query()
	params.Set("sample_rate", strconv.Itoa(c.SampleRate))
	params.Set("encoding", "pcm_s16le")
	params.Set("format_turns", "true")
	if language != "" && language != "en" {
		params.Set("speech_model", "universal-streaming-multilingual")
	}
	u.RawQuery = params.Encode()

	headers := http.Header{}
	headers.Set("Authorization", c.APIKey)
	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("assemblyai: connect status=%d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}
	return conn, nil
}

// Transcribe uploads samples in fixed-size frames and returns the formatted
// turns joined in order once the server terminates the session.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	conn, err := c.dial(ctx, language)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	pcm := audio.FromFloat32s(samples)
	step := audio.ByteLen(chunkDuration, c.SampleRate)
	for off := 0; off < len(pcm); off += step {
		end := off + step
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return Result{}, fmt.Errorf("assemblyai: send audio: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "Terminate"}); err != nil {
		return Result{}, fmt.Errorf("assemblyai: terminate: %w", err)
	}

	turns := map[int]string{}
	res := Result{Duration: audio.Duration(len(pcm), c.SampleRate)}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			// a close without Termination still yields what was collected
			logging.Debugw("assemblyai: read ended", "err", err)
			break
		}
		var base struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &base) != nil {
			continue
		}
		switch base.Type {
		case "Turn":
			var m turnMessage
			if json.Unmarshal(message, &m) == nil && strings.TrimSpace(m.Transcript) != "" {
				turns[m.TurnOrder] = strings.TrimSpace(m.Transcript)
				if m.Language != "" {
					res.Language = m.Language
				}
			}
		case "Termination":
			var m terminationMessage
			if json.Unmarshal(message, &m) == nil && m.AudioDurationSeconds > 0 {
				res.Duration = time.Duration(m.AudioDurationSeconds * float64(time.Second))
			}
			res.Text = joinTurns(turns)
			return res, nil
		case "Error":
			var m errorMessage
			_ = json.Unmarshal(message, &m)
			return Result{}, fmt.Errorf("assemblyai: %s", m.Error)
		}
	}
	res.Text = joinTurns(turns)
	return res, nil
}

func joinTurns(turns map[int]string) string {
	order := make([]int, 0, len(turns))
	for k := range turns {
		order = append(order, k)
	}
	sort.Ints(order)
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, turns[k])
	}
	return strings.Join(parts, " ")
}
