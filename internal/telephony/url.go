package telephony

import (
	"fmt"
	"net/http"
	"strings"
)

// AbsoluteURL builds the public URL for path. Priority: baseURL, then the
// X-Forwarded-* headers, then the request Host (http only for localhost).
func AbsoluteURL(r *http.Request, baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			base = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if base == "" {
		host := r.Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		base = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// WebSocketURL turns an http(s) URL into its ws(s) form.
func WebSocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
