package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/handlers"
	middlewareCustom "github.com/bastionhq/bastion/internal/middleware"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/rbac"
	"github.com/bastionhq/bastion/internal/routes"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/bastionhq/bastion/internal/token"
	"github.com/bastionhq/bastion/internal/totp"
)

// SentAlert is a captured security alert
type SentAlert struct {
	Subject string
	Body    string
}

// MockAlertMailer captures security alerts for test assertions
type MockAlertMailer struct {
	Alerts []SentAlert
	mu     sync.Mutex
}

func (m *MockAlertMailer) SendSecurityAlert(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Alerts = append(m.Alerts, SentAlert{Subject: subject, Body: body})
	return nil
}

// LastAlert returns the most recent captured alert, or nil
func (m *MockAlertMailer) LastAlert() *SentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Alerts) == 0 {
		return nil
	}
	return &m.Alerts[len(m.Alerts)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Alerts  *MockAlertMailer
	Limiter *ratelimit.Limiter
	Engine  *totp.Engine
	logger  *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database and
// captured alerts
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo, roleRepo, recoveryCodeRepo, auditLogRepo, settingsRepo := InitializeRepositories(db)

	limiter := ratelimit.New(logger)
	recorder := audit.NewRecorder(auditLogRepo, logger)
	resolver := rbac.NewResolver(roleRepo, logger)

	tokenManager := auth.NewTokenManager(
		"test-secret-32-characters-long-for-testing",
		15*time.Minute,
		7*24*time.Hour,
	)
	issuer := token.NewIssuer("customer-secret-32-characters-long", 24*time.Hour)
	timingDelay := auth.NewTimingDelay(0, 0)

	engine, err := totp.NewEngine([]byte("0123456789abcdef0123456789abcdef"), "BastionTest")
	if err != nil {
		panic(fmt.Sprintf("failed to create totp engine: %v", err))
	}

	alerts := &MockAlertMailer{}

	authService := services.NewAuthService(userRepo, limiter, tokenManager, issuer, recorder, timingDelay, alerts, logger)
	mfaService := services.NewMFAService(userRepo, recoveryCodeRepo, engine, limiter, recorder, timingDelay, alerts, logger)
	userService := services.NewUserService(userRepo, roleRepo, recorder, logger)
	roleService := services.NewRoleService(roleRepo, recorder, logger)
	auditService := services.NewAuditService(auditLogRepo, logger)
	settingsService := services.NewSettingsService(settingsRepo, recorder, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, mfaService, userRepo, tokenManager),
		MFA:      handlers.NewMFAHandler(mfaService, userRepo),
		Users:    handlers.NewUserHandler(userService),
		Roles:    handlers.NewRoleHandler(roleService),
		Audit:    handlers.NewAuditHandler(auditService),
		Settings: handlers.NewSettingsHandler(settingsService),
	}, routes.Deps{
		TokenManager: tokenManager,
		Issuer:       issuer,
		Limiter:      limiter,
		Resolver:     resolver,
		Settings:     settingsRepo,
		Logger:       logger,
	})

	return &TestServer{
		Server:  httptest.NewServer(r),
		DB:      db,
		Alerts:  alerts,
		Limiter: limiter,
		Engine:  engine,
		logger:  logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts session and challenge tokens from a
// login response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken, mfaToken string, mfaRequired bool, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", "", false, fmt.Errorf("failed to parse response: %w", err)
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := authResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}
	if mfa, ok := authResp["mfa_token"].(string); ok {
		mfaToken = mfa
	}
	if required, ok := authResp["mfa_required"].(bool); ok {
		mfaRequired = required
	}

	return
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
