package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/chadiek/voicebot/internal/logging"
)

// RecordingStatusPath receives Twilio's recording callbacks.
const RecordingStatusPath = "/twilio/recording-status"

// RecordingStore keeps finished call recordings.
type RecordingStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
}

// Recorder records phone calls through the Twilio REST API and archives
// each finished recording as WAV.
type Recorder struct {
	accountSID string
	authToken  string
	baseURL    string
	store      RecordingStore
	httpClient *http.Client

	create func(callSid string, params *twilioApi.CreateCallRecordingParams) error
}

func NewRecorder(accountSID, authToken, baseURL string, store RecordingStore) (*Recorder, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to record calls")
	}
	if store == nil {
		return nil, errors.New("no recording store configured")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Recorder{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    baseURL,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		create: func(callSid string, params *twilioApi.CreateCallRecordingParams) error {
			_, err := client.Api.CreateCallRecording(callSid, params)
			return err
		},
	}, nil
}

// Start begins a mono recording of both tracks of an in-progress call. r is
// any request from the call; it locates the status callback.
func (rec *Recorder) Start(r *http.Request, callSid string) error {
	if callSid == "" {
		return errors.New("call sid is empty")
	}
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(AbsoluteURL(r, rec.baseURL, RecordingStatusPath))
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("mono")
	params.SetRecordingTrack("both")
	params.SetTrim("do-not-trim")

	if err := rec.create(callSid, params); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	logging.Infow("call recording started", "call_sid", callSid)
	return nil
}

// Status handles POST /twilio/recording-status. Completed recordings are
// fetched and archived in the background.
func (rec *Recorder) Status(c echo.Context) error {
	params, ok := c.Get(ParamsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	recordingSid := params["RecordingSid"]
	callSid := params["CallSid"]
	logging.Infow("recording status", "status", status, "recording_sid", recordingSid, "call_sid", callSid,
		"duration", params["RecordingDuration"])

	if status == "completed" && recordingURL != "" {
		key := fmt.Sprintf("%s/%s.wav", callSid, recordingSid)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := rec.archive(ctx, recordingURL, key); err != nil {
				logging.Errorw("failed to archive recording", "recording_sid", recordingSid, "err", err)
			}
		}()
	}
	return c.String(http.StatusOK, "OK")
}

func (rec *Recorder) archive(ctx context.Context, recordingURL, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(rec.accountSID, rec.authToken)

	resp, err := rec.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("download recording failed, status %d: %s", resp.StatusCode, preview)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	return rec.store.Upload(ctx, key, "audio/wav", data)
}
