// Package telephony connects phone calls to the voice engine: the Twilio
// voice webhook, request signatures and the μ-law codec of media streams.
package telephony

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/voicebot/internal/llm"
	"github.com/chadiek/voicebot/internal/logging"
)

// Stream parameter names passed from the webhook to the media socket.
const (
	ParamProfile  = "profile"
	ParamVoice    = "voice"
	ParamAmbience = "ambience"
	ParamCaller   = "caller"
)

// Webhook answers incoming calls. Calls are connected to the media stream
// at StreamPath unless Unavailable reports that no speech capability works,
// in which case the caller hears the transfer line and is dialed through.
type Webhook struct {
	BaseURL        string
	StreamPath     string
	TransferNumber string
	Unavailable    func() bool
}

// Voice handles POST /twilio/voice. The number's webhook URL may carry
// ?profile=, ?voice= and ?ambience= to pick the session setup.
func (w Webhook) Voice(c echo.Context) error {
	params, ok := c.Get(ParamsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid := params["CallSid"]
	logging.Infow("incoming call", "call_sid", callSid, "from", params["From"], "to", params["To"])

	var verbs []twiml.Element
	if w.Unavailable != nil && w.Unavailable() {
		logging.Warnw("engine unavailable, transferring call", "call_sid", callSid)
		verbs = w.transfer()
	} else {
		verbs = []twiml.Element{w.connect(c, params)}
	}
	response, err := twiml.Voice(verbs)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

func (w Webhook) connect(c echo.Context, params map[string]string) twiml.Element {
	path := w.StreamPath
	if path == "" {
		path = "/twilio/media"
	}
	streamURL := WebSocketURL(AbsoluteURL(c.Request(), w.BaseURL, path))

	var inner []twiml.Element
	add := func(name, value string) {
		if value != "" {
			inner = append(inner, &twiml.VoiceParameter{Name: name, Value: value})
		}
	}
	add(ParamProfile, c.QueryParam(ParamProfile))
	add(ParamVoice, c.QueryParam(ParamVoice))
	add(ParamAmbience, c.QueryParam(ParamAmbience))
	add(ParamCaller, params["From"])

	return &twiml.VoiceConnect{InnerElements: []twiml.Element{
		&twiml.VoiceStream{Url: streamURL, InnerElements: inner},
	}}
}

func (w Webhook) transfer() []twiml.Element {
	verbs := []twiml.Element{&twiml.VoiceSay{Message: llm.FallbackTransfer, Language: "de-DE"}}
	if w.TransferNumber != "" {
		return append(verbs, &twiml.VoiceDial{Number: w.TransferNumber})
	}
	return append(verbs, &twiml.VoiceHangup{})
}
