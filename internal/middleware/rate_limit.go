package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/bastionhq/bastion/internal/ratelimit"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// OuterRateLimit is the coarse per-IP limiter in front of the domain limiter.
// It sheds floods cheaply; the domain limiter below it owns the real policy.
func OuterRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, 60)
		}),
	)
}

// RateLimit enforces the domain limiter for one limit type, keyed by client
// IP. Every request consumes a slot whether or not it later succeeds.
func RateLimit(limiter *ratelimit.Limiter, limitType ratelimit.Type) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ClientIP(r)

			res := limiter.Check(ip, limitType)
			if !res.Allowed {
				pkghttp.WriteTooManyRequests(w, res.RetryAfterSeconds)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BanGate rejects requests from hard-banned IPs before any other processing
func BanGate(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ClientIP(r)

			if limiter.IsBanned(ip) {
				pkghttp.WriteTooManyRequests(w, limiter.BanRetryAfter(ip))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
