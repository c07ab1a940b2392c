package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voicebot/internal/agent"
	"github.com/chadiek/voicebot/internal/audio"
	"github.com/chadiek/voicebot/internal/infra/storage"
	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/telephony"
	"github.com/chadiek/voicebot/internal/transcript"
)

type stubRecognizer struct{ text string }

func (s stubRecognizer) Transcribe(ctx context.Context, samples []float32, language string) (transcript.Result, error) {
	return transcript.Result{Text: s.text, Language: language}, nil
}

type recognizerFunc func(ctx context.Context, samples []float32, language string) (transcript.Result, error)

func (f recognizerFunc) Transcribe(ctx context.Context, samples []float32, language string) (transcript.Result, error) {
	return f(ctx, samples, language)
}

type stubSynth struct{ block bool }

func (s stubSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return audio.EncodeWAV(audio.Bytes(make([]int16, 1600)), audio.SampleRate), nil
}

type stubGen struct {
	mu    sync.Mutex
	asked []string
}

func (g *stubGen) Generate(ctx context.Context, history []llm.Turn, systemContext string) (string, error) {
	g.mu.Lock()
	g.asked = append(g.asked, history[len(history)-1].Text)
	g.mu.Unlock()
	return "Gerne, ich notiere das.", nil
}

func (g *stubGen) Summarize(ctx context.Context, history []llm.Turn) (string, error) {
	return "Anrufer wünscht ein Rezept.", nil
}

func (g *stubGen) last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.asked) == 0 {
		return ""
	}
	return g.asked[len(g.asked)-1]
}

type memorySink struct {
	mu   sync.Mutex
	recs []storage.Record
}

func (m *memorySink) Save(ctx context.Context, rec storage.Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *memorySink) saved() []storage.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Record(nil), m.recs...)
}

type fixture struct {
	handler *Handler
	server  *httptest.Server
	sink    *memorySink
	gen     *stubGen
}

func newFixture(t *testing.T, synth agent.Synthesizer, opts Options) *fixture {
	t.Helper()
	gen := &stubGen{}
	cfg := agent.DefaultConfig()
	cfg.Barge.Grace = 30 * time.Millisecond
	cfg.AmbienceEnabled = false
	engine := agent.NewEngine(cfg, nil, agent.Loaders{
		Recognizer:  func(context.Context) (agent.Recognizer, error) { return stubRecognizer{text: "Ich brauche ein Rezept"}, nil },
		Synthesizer: func(context.Context) (agent.Synthesizer, error) { return synth, nil },
		Generator:   func(context.Context) (agent.TurnGenerator, error) { return gen, nil },
	})
	engine.Initialize(context.Background())
	return serve(t, engine, gen, opts)
}

func serve(t *testing.T, engine Engine, gen *stubGen, opts Options) *fixture {
	t.Helper()
	sink := &memorySink{}
	if opts.Sink == nil {
		opts.Sink = sink
	}
	h := NewHandler(engine, opts)
	mux := http.NewServeMux()
	mux.HandleFunc("/voicebot/", func(w http.ResponseWriter, r *http.Request) {
		h.ServeVoicebot(w, r, strings.TrimPrefix(r.URL.Path, "/voicebot/"))
	})
	mux.HandleFunc("/twilio/media", h.ServeTwilioMedia)
	mux.HandleFunc("/dashboard", h.ServeDashboard)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return &fixture{handler: h, server: srv, sink: sink, gen: gen}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readRecord(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt, "expected a record, got %d bytes binary", len(data))
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func readWAV(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	require.True(t, strings.HasPrefix(string(data), "RIFF"))
	return data
}

func pcm(d time.Duration, v int16) []byte {
	n := audio.ByteLen(d, audio.SampleRate) / 2
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return audio.Bytes(s)
}

// utterance is one second of speech followed by a silent tail.
func utterance() []byte {
	return append(pcm(1200*time.Millisecond, 20000), pcm(300*time.Millisecond, 50)...)
}

func TestVoicebot_FullCall(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-1")

	sendJSON(t, conn, map[string]any{"type": "start", "profile": "law-office"})
	rec := readRecord(t, conn)
	assert.Equal(t, TypeGreeting, rec["type"])
	assert.Equal(t, "law-office", rec["profile"])
	assert.Equal(t, "Guten Tag, Rechtsanwaltskanzlei. Wie darf ich Ihnen behilflich sein?", rec["text"])
	readWAV(t, conn)
	assert.Equal(t, []string{"ch-1"}, f.handler.Registry().Channels())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, utterance()))
	rec = readRecord(t, conn)
	assert.Equal(t, TypeResponse, rec["type"])
	assert.Equal(t, "Ich brauche ein Rezept", rec["recognized"])
	assert.Equal(t, "Gerne, ich notiere das.", rec["text"])
	readWAV(t, conn)

	sendJSON(t, conn, map[string]any{"type": "config", "barge_in": false})
	rec = readRecord(t, conn)
	assert.Equal(t, TypeConfigAck, rec["type"])
	assert.Equal(t, false, rec["barge_in"])

	sendJSON(t, conn, map[string]any{"type": "announce", "text": "Bitte bleiben Sie dran."})
	rec = readRecord(t, conn)
	assert.Equal(t, TypeAnnounce, rec["type"])
	assert.Equal(t, "Bitte bleiben Sie dran.", rec["text"])
	readWAV(t, conn)

	sendJSON(t, conn, map[string]any{"type": "end"})
	rec = readRecord(t, conn)
	assert.Equal(t, TypeEnded, rec["type"])
	assert.Equal(t, "Anrufer wünscht ein Rezept.", rec["summary"])
	assert.EqualValues(t, 3, rec["turns"])
	assert.Len(t, rec["transcript"], 3)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool { return len(f.sink.saved()) == 1 }, 2*time.Second, 10*time.Millisecond)
	saved := f.sink.saved()[0]
	assert.Equal(t, "ch-1", saved.ChannelID)
	assert.Equal(t, "law-office", saved.Profile)
	assert.Len(t, saved.Turns, 3)
	assert.NotEmpty(t, saved.ID)
	require.Eventually(t, func() bool { return f.handler.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestVoicebot_AutoStartsOnAudio(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-auto")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, utterance()))
	rec := readRecord(t, conn)
	assert.Equal(t, TypeGreeting, rec["type"])
	assert.Equal(t, "medical-practice", rec["profile"])
	readWAV(t, conn)
	rec = readRecord(t, conn)
	assert.Equal(t, TypeResponse, rec["type"])
	readWAV(t, conn)
}

func TestVoicebot_DisconnectEndsSession(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-drop")
	sendJSON(t, conn, map[string]any{"type": "start"})
	readRecord(t, conn)
	readWAV(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, utterance()))
	readRecord(t, conn)
	readWAV(t, conn)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(f.sink.saved()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Anrufer wünscht ein Rezept.", f.sink.saved()[0].Summary)
	require.Eventually(t, func() bool { return f.handler.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestVoicebot_BargeInCancelsGreeting(t *testing.T) {
	f := newFixture(t, stubSynth{block: true}, Options{})
	conn := f.dial(t, "/voicebot/ch-barge")

	sendJSON(t, conn, map[string]any{"type": "start"})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm(100*time.Millisecond, 20000)))

	types := map[string]map[string]any{}
	for len(types) < 2 {
		rec := readRecord(t, conn)
		types[rec["type"].(string)] = rec
		if rec["type"] == TypeGreeting {
			readWAV(t, conn)
		}
	}
	require.Contains(t, types, TypeBargeIn)
	require.Contains(t, types, TypeGreeting)
	assert.Equal(t, true, types[TypeGreeting]["cancelled"])
}

func TestVoicebot_BargeInWhileAnotherCallHoldsRecognizer(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	slow := recognizerFunc(func(ctx context.Context, samples []float32, language string) (transcript.Result, error) {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return transcript.Result{}, nil
	})
	cfg := agent.DefaultConfig()
	cfg.Barge.Grace = 30 * time.Millisecond
	cfg.AmbienceEnabled = false
	engine := agent.NewEngine(cfg, nil, agent.Loaders{
		Recognizer:  func(context.Context) (agent.Recognizer, error) { return transcript.NewQueue(slow, 1), nil },
		Synthesizer: func(context.Context) (agent.Synthesizer, error) { return stubSynth{block: true}, nil },
		Generator:   func(context.Context) (agent.TurnGenerator, error) { return &stubGen{}, nil },
	})
	engine.Initialize(context.Background())
	f := serve(t, engine, nil, Options{})
	defer close(release)

	b := f.dial(t, "/voicebot/ch-b")
	sendJSON(t, b, map[string]any{"type": "start"})
	require.NoError(t, b.WriteMessage(websocket.BinaryMessage, pcm(time.Second, 0)))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer never reached")
	}

	a := f.dial(t, "/voicebot/ch-a")
	sendJSON(t, a, map[string]any{"type": "start"})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, pcm(time.Second, 0)))
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, pcm(100*time.Millisecond, 20000)))

	begin := time.Now()
	for {
		rec := readRecord(t, a)
		if rec["type"] == TypeGreeting {
			readWAV(t, a)
			continue
		}
		if rec["type"] == TypeBargeIn {
			break
		}
	}
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestVoicebot_DTMFAnswersMenuEntry(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-dtmf")
	sendJSON(t, conn, map[string]any{"type": "start", "industry": "law-office"})
	readRecord(t, conn)
	readWAV(t, conn)

	sendJSON(t, conn, map[string]any{"type": "dtmf", "digit": "2"})
	rec := readRecord(t, conn)
	assert.Equal(t, TypeResponse, rec["type"])
	assert.Equal(t, "Aktenauskunft", rec["recognized"])
	assert.Equal(t, "Aktenauskunft", f.gen.last())
}

func TestVoicebot_DuplicateChannelRejected(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	first := f.dial(t, "/voicebot/ch-dup")
	sendJSON(t, first, map[string]any{"type": "start"})
	readRecord(t, first)

	second := f.dial(t, "/voicebot/ch-dup")
	rec := readRecord(t, second)
	assert.Equal(t, TypeError, rec["type"])
	assert.Equal(t, "channel already in use", rec["error"])
}

func TestVoicebot_TotalFailureTransfers(t *testing.T) {
	engine := agent.NewEngine(agent.DefaultConfig(), nil, agent.Loaders{})
	engine.Initialize(context.Background())
	f := serve(t, engine, nil, Options{})

	conn := f.dial(t, "/voicebot/ch-x")
	rec := readRecord(t, conn)
	assert.Equal(t, TypeTransfer, rec["type"])
	assert.Equal(t, llm.FallbackTransfer, rec["text"])
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestVoicebot_InvalidControlKeepsCall(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-bad")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	rec := readRecord(t, conn)
	assert.Equal(t, TypeError, rec["type"])

	sendJSON(t, conn, map[string]any{"type": "config"})
	rec = readRecord(t, conn)
	if rec["type"] == TypeGreeting {
		readWAV(t, conn)
		rec = readRecord(t, conn)
	}
	assert.Equal(t, TypeConfigAck, rec["type"])
	assert.Equal(t, true, rec["barge_in"])
}

func TestAdmission(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{AuthToken: "secret", SessionRate: 0.001})
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/voicebot/ch-auth"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?password=secret", nil)
	require.NoError(t, err)
	_ = conn.Close()

	_, resp, err = websocket.DefaultDialer.Dial(url+"?password=secret", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestAuthorized(t *testing.T) {
	assert.False(t, authorized(nil, "secret"))

	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	assert.True(t, authorized(r, "secret"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Auth-Token", "tok")
	assert.True(t, authorized(r, "tok"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer abc")
	assert.True(t, authorized(r, "abc"))

	for _, tc := range []struct{ name, query, header, value string }{
		{"wrong query", "?password=wrong", "", ""},
		{"wrong x-auth-token", "", "X-Auth-Token", "nope"},
		{"wrong bearer", "", "Authorization", "Bearer nope"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
			if tc.header != "" {
				r.Header.Set(tc.header, tc.value)
			}
			assert.False(t, authorized(r, "secret"))
		})
	}
}

func TestDashboard_StalledClientDoesNotBlockPublish(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	f.dial(t, "/dashboard") // never read
	hub := f.handler.Hub()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	bulky := strings.Repeat("x", 64<<10)
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() > 0 {
		require.True(t, time.Now().Before(deadline), "stalled dashboard was never disconnected")
		begin := time.Now()
		hub.Publish(Event{Type: EventSessionEnded, Channel: "ch-load", Summary: bulky})
		require.Less(t, time.Since(begin), 500*time.Millisecond, "Publish waited on a socket")
	}

	begin := time.Now()
	hub.Publish(Event{Type: EventBargeIn, Channel: "ch-other"})
	assert.Less(t, time.Since(begin), 100*time.Millisecond)

	live := f.dial(t, "/dashboard")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(Event{Type: EventBargeIn, Channel: "ch-other"})
	ev := readRecord(t, live)
	assert.Equal(t, EventBargeIn, ev["type"])
	assert.Equal(t, "ch-other", ev["channel"])
}

func TestDashboard_ReceivesCallEvents(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	dash := f.dial(t, "/dashboard")
	require.Eventually(t, func() bool { return f.handler.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn := f.dial(t, "/voicebot/ch-dash")
	sendJSON(t, conn, map[string]any{"type": "start", "profile": "hair-salon"})
	readRecord(t, conn)

	ev := readRecord(t, dash)
	assert.Equal(t, EventSessionStarted, ev["type"])
	assert.Equal(t, "ch-dash", ev["channel"])
	assert.Equal(t, "hair-salon", ev["profile"])

	sendJSON(t, conn, map[string]any{"type": "end"})
	ev = readRecord(t, dash)
	assert.Equal(t, EventSessionEnded, ev["type"])
}

func mediaPayload(samples []int16) string {
	return base64.StdEncoding.EncodeToString(telephony.EncodeMuLaw(samples))
}

// readUntilMark collects outbound media frames up to the next mark.
func readUntilMark(t *testing.T, conn *websocket.Conn) (frames int, mark string) {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev mediaEvent
		require.NoError(t, conn.ReadJSON(&ev))
		switch ev.Event {
		case "media":
			require.NotNil(t, ev.Media)
			raw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(raw), phoneFrame)
			frames++
		case "mark":
			return frames, ev.Mark.Name
		}
	}
}

func TestTwilioMedia_Call(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/twilio/media")

	sendJSON(t, conn, map[string]any{"event": "connected", "protocol": "Call"})
	sendJSON(t, conn, map[string]any{
		"event":     "start",
		"streamSid": "MZ1",
		"start": map[string]any{
			"streamSid":        "MZ1",
			"callSid":          "CA1",
			"customParameters": map[string]string{"profile": "law-office", "caller": "+4930123"},
		},
	})
	frames, mark := readUntilMark(t, conn)
	// 100 ms of 16 kHz reply audio is 800 μ-law bytes
	assert.Equal(t, 5, frames)
	assert.Equal(t, "greeting-1", mark)
	assert.Equal(t, []string{"CA1"}, f.handler.Registry().Channels())

	sendJSON(t, conn, map[string]any{"event": "dtmf", "streamSid": "MZ1", "dtmf": map[string]string{"digit": "1"}})
	_, mark = readUntilMark(t, conn)
	assert.Equal(t, "response-2", mark)
	assert.Equal(t, "Erstberatung", f.gen.last())

	speech := make([]int16, 160)
	for i := range speech {
		speech[i] = 20000
	}
	for i := 0; i < 60; i++ {
		sendJSON(t, conn, map[string]any{"event": "media", "streamSid": "MZ1", "media": map[string]string{"track": "inbound", "payload": mediaPayload(speech)}})
	}
	silence := make([]int16, 160)
	for i := 0; i < 15; i++ {
		sendJSON(t, conn, map[string]any{"event": "media", "streamSid": "MZ1", "media": map[string]string{"track": "inbound", "payload": mediaPayload(silence)}})
	}
	_, mark = readUntilMark(t, conn)
	assert.Equal(t, "response-3", mark)
	assert.Equal(t, "Ich brauche ein Rezept", f.gen.last())

	sendJSON(t, conn, map[string]any{"event": "stop", "streamSid": "MZ1"})
	require.Eventually(t, func() bool { return len(f.sink.saved()) == 1 }, 3*time.Second, 10*time.Millisecond)
	saved := f.sink.saved()[0]
	assert.Equal(t, "CA1", saved.ChannelID)
	assert.Equal(t, "law-office", saved.Profile)
	assert.Len(t, saved.Turns, 5)
}

func TestTwilioMedia_BargeInClearsPlayback(t *testing.T) {
	f := newFixture(t, stubSynth{block: true}, Options{})
	conn := f.dial(t, "/twilio/media")
	sendJSON(t, conn, map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": "MZ2", "callSid": "CA2"},
	})
	time.Sleep(50 * time.Millisecond)
	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 20000
	}
	sendJSON(t, conn, map[string]any{"event": "media", "media": map[string]string{"payload": mediaPayload(loud)}})

	seen := map[string]bool{}
	for !(seen["clear"] && seen["mark"]) {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev mediaEvent
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Event] = true
		if ev.Event == "clear" {
			assert.Equal(t, "MZ2", ev.StreamSid)
		}
	}
}

func TestShutdown_RacesWithIncomingCalls(t *testing.T) {
	h := NewHandler(nil, Options{})
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if h.enter() {
					h.wg.Done()
				}
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	assert.False(t, h.enter())
	close(stop)
	wg.Wait()

	rec := httptest.NewRecorder()
	h.ServeVoicebot(rec, httptest.NewRequest(http.MethodGet, "/voicebot/late", nil), "late")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestShutdown_EndsLiveCalls(t *testing.T) {
	f := newFixture(t, stubSynth{}, Options{})
	conn := f.dial(t, "/voicebot/ch-shut")
	sendJSON(t, conn, map[string]any{"type": "start"})
	readRecord(t, conn)
	readWAV(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.handler.Shutdown(ctx))

	rec := readRecord(t, conn)
	assert.Equal(t, TypeEnded, rec["type"])
	assert.Equal(t, 0, f.handler.Registry().Len())

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+"/voicebot/late", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
