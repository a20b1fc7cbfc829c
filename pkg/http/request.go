package http

import (
	"net"
	"net/http"
	"strings"
)

// loopback is the fallback identity when no client address can be derived
const loopback = "127.0.0.1"

// ClientIP derives the client IP for rate limiting and allow-list checks:
// the first entry of X-Forwarded-For (trimmed), then X-Real-IP, then the
// connection's remote address, defaulting to loopback when nothing usable is
// present. The core never parses HTTP beyond these two headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return loopback
}

// UserAgent returns the request's User-Agent header, bounded to keep audit
// records small
func UserAgent(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if len(ua) > 256 {
		ua = ua[:256]
	}
	return ua
}
