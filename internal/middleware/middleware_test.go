package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
)

type staticSettings struct {
	settings *models.SecuritySettings
	err      error
}

func (s *staticSettings) Get(ctx context.Context) (*models.SecuritySettings, error) {
	return s.settings, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doRequest(t *testing.T, handler http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAllowListGate(t *testing.T) {
	source := &staticSettings{settings: &models.SecuritySettings{
		AllowListEnabled: true,
		AllowListRules:   []string{"10.0.0.0/8"},
	}}
	handler := AllowListGate(source, testLogger())(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "10.1.2.3").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(t, handler, "192.168.1.1").Code)
}

func TestAllowListGate_DisabledPassesAll(t *testing.T) {
	source := &staticSettings{settings: &models.SecuritySettings{
		AllowListEnabled: false,
		AllowListRules:   []string{"10.0.0.1"},
	}}
	handler := AllowListGate(source, testLogger())(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "192.168.1.1").Code)
}

func TestAllowListGate_EmptyRulesFailOpen(t *testing.T) {
	source := &staticSettings{settings: &models.SecuritySettings{
		AllowListEnabled: true,
		AllowListRules:   []string{},
	}}
	handler := AllowListGate(source, testLogger())(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "192.168.1.1").Code)
}

func TestAllowListGate_LookupFailureFailsOpen(t *testing.T) {
	source := &staticSettings{err: fmt.Errorf("store down")}
	handler := AllowListGate(source, testLogger())(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "192.168.1.1").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(testLogger())
	handler := RateLimit(limiter, ratelimit.TypeSensitive)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(t, handler, "203.0.113.9").Code, "request %d", i+1)
	}

	rec := doRequest(t, handler, "203.0.113.9")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different IP is unaffected
	assert.Equal(t, http.StatusOK, doRequest(t, handler, "203.0.113.10").Code)
}

func TestBanGate(t *testing.T) {
	limiter := ratelimit.New(testLogger())
	handler := BanGate(limiter)(okHandler())

	ip := "198.51.100.5"
	assert.Equal(t, http.StatusOK, doRequest(t, handler, ip).Code)

	for i := 0; i < ratelimit.StrikeThreshold; i++ {
		limiter.RecordStrike(ip)
	}

	rec := doRequest(t, handler, ip)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "production"})(okHandler())

	rec := doRequest(t, handler, "10.0.0.1")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}
