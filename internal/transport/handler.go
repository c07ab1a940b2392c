// Package transport attaches calls to sessions: the native voicebot
// WebSocket, the Twilio media stream, the channel registry and the
// dashboard feed.
package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/infra/storage"
	"github.com/chadiek/voicebot/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	jobQueue     = 32
	segmentQueue = 4
)

// Engine creates sessions. *agent.Engine implements it.
type Engine interface {
	CreateSession(channelID, industryKey string, opts agent.SessionOptions) *agent.Session
	TotalFailure() bool
}

// Options configure a Handler.
type Options struct {
	// AuthToken, when set, must accompany voicebot connections as
	// ?password=, a Bearer token or X-Auth-Token.
	AuthToken string
	// SessionRate caps new calls per second. Zero disables the limit.
	SessionRate float64
	// Sink receives finished transcripts. Optional.
	Sink storage.Sink
	// EndTimeout bounds the summary and transcript hand-off after a call.
	EndTimeout time.Duration
	// SampleRate of the PCM exchanged with sessions.
	SampleRate int
	// OnPhoneCall runs in its own goroutine once a phone media stream has
	// started. r is the stream's upgrade request.
	OnPhoneCall func(r *http.Request, callSid string)
}

// Handler serves the call sockets.
type Handler struct {
	engine    Engine
	registry  *Registry
	hub       *Hub
	limiter   *rate.Limiter
	sink      storage.Sink
	authToken string
	endWait   time.Duration
	rate      int
	upgrader  websocket.Upgrader
	onPhone   func(r *http.Request, callSid string)

	admitMu sync.Mutex
	wg      sync.WaitGroup
	closing atomic.Bool
}

func NewHandler(engine Engine, opts Options) *Handler {
	h := &Handler{
		engine:    engine,
		registry:  NewRegistry(),
		hub:       NewHub(),
		sink:      opts.Sink,
		authToken: opts.AuthToken,
		endWait:   opts.EndTimeout,
		rate:      opts.SampleRate,
		onPhone:   opts.OnPhoneCall,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  65536,
			WriteBufferSize: 65536,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if h.endWait <= 0 {
		h.endWait = 35 * time.Second
	}
	if h.rate <= 0 {
		h.rate = 16000
	}
	if opts.SessionRate > 0 {
		burst := int(opts.SessionRate)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.SessionRate), burst)
	}
	return h
}

// Registry of live calls.
func (h *Handler) Registry() *Registry { return h.registry }

// Hub feeding the dashboards.
func (h *Handler) Hub() *Hub { return h.hub }

// ServeDashboard attaches a dashboard socket to the hub.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeDashboard(&h.upgrader, w, r)
}

// admit runs the checks made before a call socket is upgraded. It writes
// the error response itself. On success the caller owns one h.wg count.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, checkAuth bool) bool {
	if h.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return false
	}
	if checkAuth && h.authToken != "" && !authorized(r, h.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if h.limiter != nil && !h.limiter.Allow() {
		logging.Warnw("call rejected by session limiter", "remote", r.RemoteAddr)
		http.Error(w, "too many calls", http.StatusTooManyRequests)
		return false
	}
	if !h.enter() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// enter counts a call socket for Shutdown. It fails once Shutdown started.
func (h *Handler) enter() bool {
	h.admitMu.Lock()
	defer h.admitMu.Unlock()
	if h.closing.Load() {
		return false
	}
	h.wg.Add(1)
	return true
}

// authorized accepts the token as ?password=, Authorization: Bearer or
// X-Auth-Token.
func authorized(r *http.Request, token string) bool {
	if r == nil || token == "" {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == token {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == token {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == token {
		return true
	}
	return false
}

// Shutdown ends every live call, waits for their hand-off and closes the
// dashboards. New calls are refused from the first call on.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.admitMu.Lock()
	h.closing.Store(true)
	h.admitMu.Unlock()
	for _, c := range h.registry.snapshot() {
		go c.finish("shutdown")
	}
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	defer h.hub.closeAll()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
