package middleware

import "net/http"

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Env string
}

// SecurityHeaders adds the standard browser hardening headers to every
// response. CSP and HSTS tighten in production.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-DNS-Prefetch-Control", "off")
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
			w.Header().Set("Permissions-Policy",
				"accelerometer=(), camera=(), geolocation=(), microphone=(), payment=(), usb=()")

			if config.Env == "production" {
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; "+
						"script-src 'self'; "+
						"style-src 'self' 'unsafe-inline'; "+
						"img-src 'self' data:; "+
						"connect-src 'self'; "+
						"frame-ancestors 'none'; "+
						"base-uri 'self'; "+
						"form-action 'self'")
				if r.Header.Get("X-Forwarded-Proto") == "https" || r.URL.Scheme == "https" {
					w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
				}
			} else {
				w.Header().Set("Content-Security-Policy",
					"default-src 'self' http: https: ws:; "+
						"script-src 'self' 'unsafe-inline' http: https:; "+
						"style-src 'self' 'unsafe-inline' http: https:; "+
						"img-src 'self' data: http: https:; "+
						"connect-src 'self' http: https: ws: wss:; "+
						"frame-ancestors 'self'; "+
						"base-uri 'self'; "+
						"form-action 'self'")
			}

			next.ServeHTTP(w, r)
		})
	}
}
