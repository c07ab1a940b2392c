package tts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
)

// DeepgramClient streams linear16 speech from Deepgram Aura over the SDK websocket.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	idleWindow time.Duration
	deadline   time.Duration
}

func NewDeepgramClient(apiKey, model string, sampleRate int) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		model:      model,
		sampleRate: sampleRate,
		encoding:   "linear16",
		idleWindow: 400 * time.Millisecond,
		deadline:   12 * time.Second,
	}
}

func (d *DeepgramClient) Name() string { return "deepgram" }

// StreamPCM speaks text with voice (a Deepgram model id, default model when
// empty). PCM chunks arrive on the first channel; both channels close when
// the stream goes idle, ctx ends or the deadline passes.
func (d *DeepgramClient) StreamPCM(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- errors.New("deepgram: API key missing")
			return
		}
		if text == "" {
			return
		}
		model := d.model
		if voice != "" {
			model = voice
		}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      model,
			Encoding:   d.encoding,
			SampleRate: d.sampleRate,
		}

		var lastRecvUnix int64
		var seenAudio int32

		cb := &speakCallback{onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
			atomic.StoreInt32(&seenAudio, 1)
			b := make([]byte, len(data))
			copy(b, data)
			select {
			case pcmCh <- b:
			case <-ctx.Done():
			}
			return nil
		}}

		dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- fmt.Errorf("deepgram: create ws client: %w", err)
			return
		}

		stopped := false
		stopClient := func() {
			if !stopped {
				stopped = true
				dg.Stop()
			}
		}
		defer stopClient()

		if ok := dg.Connect(); !ok {
			errCh <- errors.New("deepgram: connect failed")
			return
		}

		if err := dg.SpeakWithText(text); err != nil {
			errCh <- fmt.Errorf("deepgram: speak text: %w", err)
			return
		}
		if err := dg.Flush(); err != nil {
			logging.Warnw("deepgram: flush failed", "err", err)
		}

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.Now().Add(d.deadline)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt32(&seenAudio) == 1 {
					last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
					if time.Since(last) > d.idleWindow {
						return
					}
				}
				if time.Now().After(deadline) {
					logging.Warnw("deepgram: synthesis deadline reached", "chars", len(text))
					return
				}
			}
		}
	}()

	return pcmCh, errCh
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(w *msginterfaces.WarningResponse) error {
	logging.Warnw("deepgram: warning", "warning", w)
	return nil
}
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	logging.Errorw("deepgram: error event", "error", e)
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
