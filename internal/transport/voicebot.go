package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/logging"
)

const maxFrame = 1 << 20

// socketEmitter writes JSON records and binary WAV frames to a voicebot
// client.
type socketEmitter struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	stop      chan struct{}
	closeOnce sync.Once
}

func newSocketEmitter(conn *websocket.Conn) *socketEmitter {
	return &socketEmitter{conn: conn, stop: make(chan struct{})}
}

func (e *socketEmitter) send(record any, wav []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := e.conn.WriteJSON(record); err != nil {
		return err
	}
	if len(wav) == 0 {
		return nil
	}
	return e.conn.WriteMessage(websocket.BinaryMessage, wav)
}

func (e *socketEmitter) clear() {
	if err := e.send(notice{Type: TypeBargeIn}, nil); err != nil {
		logging.Debugw("barge-in record not delivered", "err", err)
	}
}

func (e *socketEmitter) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = e.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
		case <-e.stop:
			return
		}
	}
}

func (e *socketEmitter) close() {
	e.closeOnce.Do(func() {
		close(e.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = e.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = e.conn.Close()
	})
}

// ServeVoicebot runs a voicebot call on channel. An empty channel gets a
// generated id. Text frames are control records, binary frames are 16 kHz
// s16le mono PCM.
func (h *Handler) ServeVoicebot(w http.ResponseWriter, r *http.Request, channel string) {
	if !h.admit(w, r, true) {
		return
	}
	defer h.wg.Done()
	if channel == "" {
		channel = uuid.NewString()
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("voicebot upgrade failed", "channel.id", channel, "err", err)
		return
	}

	out := newSocketEmitter(conn)
	if h.engine.TotalFailure() {
		logging.Warnw("engine unavailable, transferring caller", "channel.id", channel)
		_ = out.send(notice{Type: TypeTransfer, Channel: channel, Text: llm.FallbackTransfer}, nil)
		out.close()
		return
	}

	c := h.newCall(r.Context(), channel, out)
	if !h.registry.add(channel, c) {
		logging.Warnw("channel already in use", "channel.id", channel)
		_ = out.send(notice{Type: TypeError, Channel: channel, Error: "channel already in use"}, nil)
		out.close()
		return
	}
	c.begin()
	logging.Infow("voicebot connected", "channel.id", channel, "remote", r.RemoteAddr)

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go out.pingLoop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.finish("disconnect")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		switch mt {
		case websocket.BinaryMessage:
			c.audio(data)
		case websocket.TextMessage:
			var m control
			if err := json.Unmarshal(data, &m); err != nil {
				_ = out.send(notice{Type: TypeError, Channel: channel, Error: "invalid control record"}, nil)
				continue
			}
			if !c.control(m) {
				c.finish("end")
				return
			}
		}
	}
}

// control applies one control record. It returns false on end.
func (c *call) control(m control) bool {
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case TypeStart:
		c.start(m.profile(), agent.SessionOptions{Voice: m.Voice, Ambience: m.Ambience})
	case TypeAnnounce:
		c.announce(m.Text)
	case TypeConfig:
		c.configure(m.BargeIn)
	case TypeDTMF:
		c.dtmf(m.Digit)
	case TypeEnd:
		return false
	default:
		c.ensure()
		logging.DebugwCtx(c.ctx, "unknown control record", "type", m.Type)
	}
	return true
}
