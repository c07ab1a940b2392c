package telephony

import (
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"

	"github.com/chadiek/voicebot/internal/logging"
)

// ParamsKey is the echo context key holding the verified webhook form.
const ParamsKey = "twilioParams"

// ValidateSignature checks an X-Twilio-Signature against the full URL and
// form parameters.
func ValidateSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	validator := client.NewRequestValidator(authToken)
	return validator.Validate(fullURL, params, signature)
}

// SignatureAuth rejects webhook requests whose signature does not match.
// The URL is rebuilt against baseURL so signatures survive a TLS proxy. On
// success the form is stored under ParamsKey.
func SignatureAuth(authToken, baseURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}
			req := c.Request()
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(form))
			for key, values := range form {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			fullURL := AbsoluteURL(req, baseURL, req.URL.RequestURI())
			if !ValidateSignature(authToken, req.Header.Get("X-Twilio-Signature"), fullURL, params) {
				logging.Warnw("twilio signature rejected", "url", fullURL, "call_sid", params["CallSid"])
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}
			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}
