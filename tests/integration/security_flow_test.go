package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion/internal/repositories"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	testDB.Teardown(ctx)
	os.Exit(code)
}

func freshServer(t *testing.T) *TestServer {
	t.Helper()

	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts := NewTestServer(testDB.DB)
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *TestServer, email, password string) *http.Response {
	t.Helper()

	resp, err := ts.Request("POST", "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	return resp
}

func TestLoginAndAdminFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	email, password := TestUser("admin")
	_, err := SeedUser(ctx, testDB.DB, email, password, "admin")
	require.NoError(t, err)

	resp := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accessToken, refreshToken, _, mfaRequired, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	assert.False(t, mfaRequired)
	assert.NotEmpty(t, accessToken)
	assert.NotEmpty(t, refreshToken)

	// Admin wildcard permission covers user administration
	listResp, err := ts.RequestWithAuth("GET", "/users", accessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
	listResp.Body.Close()

	createResp, err := ts.RequestWithAuth("POST", "/users", accessToken, map[string]string{
		"email":    "created-" + email,
		"password": "AnotherPassword123!",
		"name":     "Created User",
		"role":     "viewer",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, createResp.StatusCode)
	createResp.Body.Close()

	// The login and the creation both landed in the audit trail
	auditResp, err := ts.RequestWithAuth("GET", "/audit", accessToken, nil)
	require.NoError(t, err)
	var auditBody struct {
		Records []struct {
			Action     string `json:"action"`
			EntityType string `json:"entity_type"`
		} `json:"records"`
	}
	require.NoError(t, ParseJSONResponse(auditResp, &auditBody))
	require.NotEmpty(t, auditBody.Records)

	actions := make(map[string]bool)
	for _, record := range auditBody.Records {
		actions[record.Action+"/"+record.EntityType] = true
	}
	assert.True(t, actions["login/session"])
	assert.True(t, actions["create/user"])
}

func TestLoginRateLimitLockout(t *testing.T) {
	ts := freshServer(t)

	email, _ := TestUser("locked")
	var last *http.Response
	for i := 0; i < 6; i++ {
		last = login(t, ts, email, "wrong-password")
		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, last.StatusCode, "attempt %d", i+1)
		}
		last.Body.Close()
	}

	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestMFAEnrollmentAndChallengeFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	email, password := TestUser("mfa")
	_, err := SeedUser(ctx, testDB.DB, email, password, "admin")
	require.NoError(t, err)

	resp := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, _, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	// Enroll
	enrollResp, err := ts.RequestWithAuth("POST", "/auth/mfa/enroll", accessToken, nil)
	require.NoError(t, err)
	var enrollment struct {
		Secret string `json:"secret"`
	}
	require.NoError(t, ParseJSONResponse(enrollResp, &enrollment))
	require.NotEmpty(t, enrollment.Secret)

	// Confirm with a live code; recovery codes come back exactly once
	code, err := ts.Engine.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	confirmResp, err := ts.RequestWithAuth("POST", "/auth/mfa/confirm", accessToken, map[string]string{"code": code})
	require.NoError(t, err)
	var confirmed struct {
		RecoveryCodes []string `json:"recovery_codes"`
	}
	require.NoError(t, ParseJSONResponse(confirmResp, &confirmed))
	assert.Len(t, confirmed.RecoveryCodes, 10)

	// Next login returns a challenge instead of a session
	resp = login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, mfaToken, mfaRequired, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	assert.True(t, mfaRequired)
	assert.Empty(t, accessToken)
	require.NotEmpty(t, mfaToken)

	// Complete the challenge
	code, err = ts.Engine.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	verifyResp, err := ts.Request("POST", "/auth/mfa/verify", map[string]string{
		"mfa_token": mfaToken,
		"code":      code,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, verifyResp.StatusCode)

	accessToken, _, _, _, err = ExtractTokensFromResponse(verifyResp)
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
}

func TestViewerCannotAdminister(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	email, password := TestUser("viewer")
	_, err := SeedUser(ctx, testDB.DB, email, password, "viewer")
	require.NoError(t, err)

	resp := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, _, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	createResp, err := ts.RequestWithAuth("POST", "/users", accessToken, map[string]string{
		"email":    "nope@example.com",
		"password": "AnotherPassword123!",
		"name":     "Nope",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, createResp.StatusCode)
	createResp.Body.Close()
}

func TestExplicitRoleOverridesLegacyRole(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	// A viewer pointed at a role carrying users.read can list but not write
	role, err := SeedRole(ctx, testDB.DB, "user-auditor", []string{"users.read"})
	require.NoError(t, err)

	email, password := TestUser("assigned")
	user, err := SeedUser(ctx, testDB.DB, email, password, "viewer")
	require.NoError(t, err)

	userRepo := repositories.NewUserRepository(testDB.DB)
	require.NoError(t, userRepo.AssignRole(ctx, user.ID, &role.ID))

	resp := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, _, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	listResp, err := ts.RequestWithAuth("GET", "/users", accessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
	listResp.Body.Close()

	createResp, err := ts.RequestWithAuth("POST", "/users", accessToken, map[string]string{
		"email":    "denied@example.com",
		"password": "AnotherPassword123!",
		"name":     "Denied",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, createResp.StatusCode)
	createResp.Body.Close()
}

func TestAllowListGateEnforced(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	email, password := TestUser("gatekeeper")
	_, err := SeedUser(ctx, testDB.DB, email, password, "admin")
	require.NoError(t, err)

	resp := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, _, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	// Restrict to a private range; the update request itself predates the rule
	updateResp, err := ts.RequestWithAuth("PUT", "/settings/security/allowlist", accessToken, map[string]any{
		"enabled": true,
		"rules":   []string{"10.0.0.0/8"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, updateResp.StatusCode)
	updateResp.Body.Close()

	// Inside the allowed range
	okResp, err := ts.Request("GET", "/health", nil, map[string]string{"X-Real-IP": "10.1.2.3"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, okResp.StatusCode)
	okResp.Body.Close()

	// Outside it
	blockedResp, err := ts.Request("GET", "/health", nil, map[string]string{"X-Real-IP": "192.168.1.1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, blockedResp.StatusCode)
	blockedResp.Body.Close()
}
