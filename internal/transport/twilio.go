package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/logging"
	"github.com/chadiek/voicebot/internal/telephony"
)

// 20 ms of 8 kHz μ-law.
const phoneFrame = 160

type mediaEvent struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Start     *mediaStart `json:"start,omitempty"`
	Media     *mediaChunk `json:"media,omitempty"`
	DTMF      *mediaDTMF  `json:"dtmf,omitempty"`
	Mark      *mediaMark  `json:"mark,omitempty"`
}

type mediaStart struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaChunk struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type mediaDTMF struct {
	Digit string `json:"digit"`
}

type mediaMark struct {
	Name string `json:"name"`
}

// phoneEmitter plays replies into a Twilio media stream as 20 ms μ-law
// frames followed by a mark. Records have no wire form here.
type phoneEmitter struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
	marks     int
	closeOnce sync.Once
}

func (e *phoneEmitter) setStream(sid string) {
	e.mu.Lock()
	e.streamSid = sid
	e.mu.Unlock()
}

func (e *phoneEmitter) write(v any) error {
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteJSON(v)
}

func (e *phoneEmitter) send(record any, wav []byte) error {
	if len(wav) == 0 {
		return nil
	}
	format, data, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("decode reply audio: %w", err)
	}
	payload := telephony.PCMToPhone(audio.MonoPCM(format, data), format.SampleRate)

	e.mu.Lock()
	defer e.mu.Unlock()
	for off := 0; off < len(payload); off += phoneFrame {
		end := min(off+phoneFrame, len(payload))
		frame := mediaEvent{
			Event:     "media",
			StreamSid: e.streamSid,
			Media:     &mediaChunk{Payload: base64.StdEncoding.EncodeToString(payload[off:end])},
		}
		if err := e.write(frame); err != nil {
			return err
		}
	}
	e.marks++
	name := "reply"
	if r, ok := record.(spokenRecord); ok {
		name = r.Type
	}
	return e.write(mediaEvent{Event: "mark", StreamSid: e.streamSid, Mark: &mediaMark{Name: fmt.Sprintf("%s-%d", name, e.marks)}})
}

func (e *phoneEmitter) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.write(mediaEvent{Event: "clear", StreamSid: e.streamSid}); err != nil {
		logging.Debugw("clear not delivered", "err", err)
	}
}

func (e *phoneEmitter) close() {
	e.closeOnce.Do(func() { _ = e.conn.Close() })
}

// ServeTwilioMedia runs a call over a Twilio bidirectional media stream.
// The session starts on the stream's start event with the profile, voice
// and ambience passed as stream parameters.
func (h *Handler) ServeTwilioMedia(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, false) {
		return
	}
	defer h.wg.Done()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("media stream upgrade failed", "err", err)
		return
	}

	out := &phoneEmitter{conn: conn}
	var c *call
	defer func() {
		if c != nil {
			c.finish("hangup")
			return
		}
		out.close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev mediaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Event {
		case "connected":
			logging.Debugw("media stream connected")
		case "start":
			if c != nil || ev.Start == nil {
				continue
			}
			out.setStream(ev.Start.StreamSid)
			if h.engine.TotalFailure() {
				logging.Warnw("engine unavailable, dropping media stream", "call_sid", ev.Start.CallSid)
				return
			}
			channel := ev.Start.CallSid
			if channel == "" {
				channel = ev.Start.StreamSid
			}
			if channel == "" {
				channel = uuid.NewString()
			}
			nc := h.newCall(r.Context(), channel, out)
			if !h.registry.add(channel, nc) {
				logging.Warnw("channel already in use", "channel.id", channel)
				return
			}
			c = nc
			c.begin()
			if h.onPhone != nil && ev.Start.CallSid != "" {
				go h.onPhone(r, ev.Start.CallSid)
			}
			p := ev.Start.CustomParameters
			logging.Infow("phone call connected", "channel.id", channel, "caller", p[telephony.ParamCaller])
			c.start(p[telephony.ParamProfile], agent.SessionOptions{
				Voice:    p[telephony.ParamVoice],
				Ambience: p[telephony.ParamAmbience],
			})
		case "media":
			if c == nil || ev.Media == nil || ev.Media.Track == "outbound" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil || len(payload) == 0 {
				continue
			}
			c.audio(telephony.PhoneToPCM(payload, h.rate))
		case "dtmf":
			if c != nil && ev.DTMF != nil {
				c.dtmf(ev.DTMF.Digit)
			}
		case "mark":
			if ev.Mark != nil {
				logging.Debugw("playback mark reached", "mark", ev.Mark.Name)
			}
		case "stop":
			return
		}
	}
}
