package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/infra/storage"
	"github.com/chadiek/voicebot/internal/profile"
	"github.com/chadiek/voicebot/internal/telephony"
	"github.com/chadiek/voicebot/internal/transport"
)

// Engine is the part of the engine the HTTP surface reports on.
type Engine interface {
	Status() agent.Status
	Profiles() *profile.Catalog
	Ambience() map[string]bool
}

// Transcripts reads back saved calls.
type Transcripts interface {
	Get(ctx context.Context, id string) (storage.Record, error)
	Recent(ctx context.Context, n int) ([]storage.Record, error)
}

// Deps are the handlers mounted on the router. Recorder, Transcripts and
// Metrics are optional.
type Deps struct {
	Engine          Engine
	Transport       *transport.Handler
	Webhook         telephony.Webhook
	TwilioAuthToken string
	Recorder        *telephony.Recorder
	Transcripts     Transcripts
	Metrics         http.Handler
}

// Server bundles the router and its dependencies.
type Server struct {
	Router *echo.Echo
	deps   Deps
}

const maxTranscripts = 100

// NewServer mounts every route on a new router.
func NewServer(d Deps) *Server {
	s := &Server{Router: New(), deps: d}
	e := s.Router

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/readyz", s.ready)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}
	e.GET("/profiles", s.profiles)
	e.GET("/ambience", func(c echo.Context) error { return c.JSON(http.StatusOK, d.Engine.Ambience()) })

	e.GET("/voicebot", s.voicebot)
	e.GET("/voicebot/:channel", s.voicebot)
	e.GET("/sessions", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"channels": d.Transport.Registry().Channels()})
	})
	e.GET("/dashboard", func(c echo.Context) error {
		d.Transport.ServeDashboard(c.Response(), c.Request())
		return nil
	})

	e.POST("/twilio/voice", d.Webhook.Voice, telephony.SignatureAuth(d.TwilioAuthToken, d.Webhook.BaseURL))
	if d.Recorder != nil {
		e.POST(telephony.RecordingStatusPath, d.Recorder.Status, telephony.SignatureAuth(d.TwilioAuthToken, d.Webhook.BaseURL))
	}
	e.GET("/twilio/media", func(c echo.Context) error {
		d.Transport.ServeTwilioMedia(c.Response(), c.Request())
		return nil
	})

	if d.Transcripts != nil {
		e.GET("/transcripts", s.recentTranscripts)
		e.GET("/transcripts/:id", s.transcript)
	}
	return s
}

func (s *Server) voicebot(c echo.Context) error {
	s.deps.Transport.ServeVoicebot(c.Response(), c.Request(), c.Param("channel"))
	return nil
}

type readiness struct {
	Ready        bool         `json:"ready"`
	Capabilities agent.Status `json:"capabilities"`
	Sessions     int          `json:"sessions"`
}

func (s *Server) ready(c echo.Context) error {
	st := s.deps.Engine.Status()
	body := readiness{Ready: !st.TotalFailure(), Capabilities: st, Sessions: s.deps.Transport.Registry().Len()}
	code := http.StatusOK
	if !body.Ready {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, body)
}

type profileSummary struct {
	Key      string              `json:"key"`
	Label    string              `json:"label"`
	Greeting string              `json:"greeting"`
	Menu     []profile.MenuEntry `json:"menu,omitempty"`
	Default  bool                `json:"default,omitempty"`
}

func (s *Server) profiles(c echo.Context) error {
	catalog := s.deps.Engine.Profiles()
	def := catalog.DefaultKey()
	list := catalog.List()
	out := make([]profileSummary, 0, len(list))
	for _, p := range list {
		out = append(out, profileSummary{Key: p.Key, Label: p.Label, Greeting: p.Greeting, Menu: p.Menu, Default: p.Key == def})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) recentTranscripts(c echo.Context) error {
	n := 20
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		n = min(parsed, maxTranscripts)
	}
	recs, err := s.deps.Transcripts.Recent(c.Request().Context(), n)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "transcript store unavailable").SetInternal(err)
	}
	if recs == nil {
		recs = []storage.Record{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) transcript(c echo.Context) error {
	rec, err := s.deps.Transcripts.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "transcript not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "transcript store unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusOK, rec)
}
