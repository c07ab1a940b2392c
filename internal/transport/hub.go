package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/voicebot/internal/logging"
)

// Dashboard event types.
const (
	EventSessionStarted = "session-started"
	EventSessionEnded   = "session-ended"
	EventBargeIn        = "barge-in"
)

// Event is broadcast to every dashboard socket.
type Event struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	Profile string    `json:"profile,omitempty"`
	Turns   int       `json:"turns,omitempty"`
	Summary string    `json:"summary,omitempty"`
	At      time.Time `json:"at"`
}

const dashboardBuffer = 64

// dashboard is one subscribed socket with its own writer.
type dashboard struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump writes queued events until send is closed or a write fails.
func (d *dashboard) writePump() {
	defer d.conn.Close()
	for data := range d.send {
		_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Debugw("dashboard write failed", "err", err)
			return
		}
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = d.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub fans events out to dashboard sockets. Publish never waits on a
// socket: a dashboard whose queue is full is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*dashboard]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*dashboard]struct{})}
}

// Publish queues ev for every dashboard.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for d := range h.clients {
		select {
		case d.send <- data:
		default:
			logging.Warnw("dashboard not keeping up, disconnecting", "event", ev.Type)
			h.dropLocked(d)
			_ = d.conn.Close()
		}
	}
}

func (h *Hub) register(d *dashboard) {
	h.mu.Lock()
	h.clients[d] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(d *dashboard) {
	h.mu.Lock()
	h.dropLocked(d)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(d *dashboard) {
	if _, ok := h.clients[d]; ok {
		delete(h.clients, d)
		close(d.send)
	}
}

// Clients is the number of connected dashboards.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeDashboard upgrades r and keeps the socket registered until the
// client goes away. Inbound frames are read and ignored.
func (h *Hub) ServeDashboard(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("dashboard upgrade failed", "err", err)
		return
	}
	d := &dashboard{conn: conn, send: make(chan []byte, dashboardBuffer)}
	h.register(d)
	go d.writePump()
	logging.Infow("dashboard connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(d)
	logging.Infow("dashboard disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for d := range h.clients {
		h.dropLocked(d)
	}
}
