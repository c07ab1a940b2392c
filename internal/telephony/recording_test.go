package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type memoryRecordings struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func (m *memoryRecordings) Upload(_ context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string][]byte{}
	}
	m.keys[key+"|"+contentType] = data
	return nil
}

func (m *memoryRecordings) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.keys[key]
	return b, ok
}

func TestNewRecorder_RequiresCredentials(t *testing.T) {
	_, err := NewRecorder("", "token", "", &memoryRecordings{})
	assert.Error(t, err)
	_, err = NewRecorder("AC1", "token", "", nil)
	assert.Error(t, err)

	rec, err := NewRecorder("AC1", "token", "", &memoryRecordings{})
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRecorder_Start(t *testing.T) {
	var gotSid string
	var got *twilioApi.CreateCallRecordingParams
	rec := &Recorder{baseURL: "https://bot.example", create: func(callSid string, p *twilioApi.CreateCallRecordingParams) error {
		gotSid, got = callSid, p
		return nil
	}}

	r := httptest.NewRequest(http.MethodGet, "/twilio/media", nil)
	require.NoError(t, rec.Start(r, "CA7"))
	assert.Equal(t, "CA7", gotSid)
	require.NotNil(t, got.RecordingStatusCallback)
	assert.Equal(t, "https://bot.example/twilio/recording-status", *got.RecordingStatusCallback)
	assert.Equal(t, "mono", *got.RecordingChannels)

	assert.Error(t, rec.Start(r, ""))

	rec.create = func(string, *twilioApi.CreateCallRecordingParams) error { return errors.New("call not in-progress") }
	err := rec.Start(r, "CA7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start recording")
}

func TestRecorder_StatusArchivesCompletedRecording(t *testing.T) {
	twilioMedia := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/Recordings/RE1.wav" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("RIFF....WAVE"))
	}))
	t.Cleanup(twilioMedia.Close)

	store := &memoryRecordings{}
	rec, err := NewRecorder("AC1", "token", "", store)
	require.NoError(t, err)

	e := echo.New()
	e.POST(RecordingStatusPath, rec.Status, SignatureAuth("token", ""))
	form := url.Values{
		"CallSid":         {"CA1"},
		"RecordingSid":    {"RE1"},
		"RecordingStatus": {"completed"},
		"RecordingUrl":    {twilioMedia.URL + "/Recordings/RE1"},
	}
	params := map[string]string{}
	for k, v := range form {
		params[k] = v[0]
	}
	sig := sign("token", "https://bot.example"+RecordingStatusPath, params)

	resp := postForm(t, e, RecordingStatusPath, form, sig)
	require.Equal(t, http.StatusOK, resp.Code)

	require.Eventually(t, func() bool {
		_, ok := store.get("CA1/RE1.wav|audio/wav")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	data, _ := store.get("CA1/RE1.wav|audio/wav")
	assert.Equal(t, "RIFF....WAVE", string(data))
}

func TestRecorder_StatusIgnoresInProgress(t *testing.T) {
	store := &memoryRecordings{}
	rec := &Recorder{store: store, httpClient: http.DefaultClient}

	e := echo.New()
	e.POST(RecordingStatusPath, rec.Status, SignatureAuth("token", ""))
	form := url.Values{"RecordingStatus": {"in-progress"}, "RecordingUrl": {"http://127.0.0.1:1/x"}}
	sig := sign("token", "https://bot.example"+RecordingStatusPath, map[string]string{
		"RecordingStatus": "in-progress", "RecordingUrl": "http://127.0.0.1:1/x",
	})

	resp := postForm(t, e, RecordingStatusPath, form, sig)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, store.keys)
}
