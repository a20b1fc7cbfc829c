package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion/internal/models"
	pkgauth "github.com/bastionhq/bastion/pkg/auth"
)

func newAuthService(users *MockUserRepository, alerts *MockAlertMailer) (*AuthService, *captureSink) {
	recorder, sink := testRecorder()
	svc := NewAuthService(
		users, testLimiter(), testTokenManager(), testIssuer(),
		recorder, testTiming(), alerts, testLogger(),
	)
	return svc, sink
}

func userWithPassword(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	user := NewTestUser(email, "Test User")
	user.PasswordHash = hash
	return user
}

func TestLogin_Success(t *testing.T) {
	user := userWithPassword(t, "admin@example.com", "Correct-Horse-9")
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}

	svc, sink := newAuthService(users, &MockAlertMailer{})

	result, err := svc.Login(context.Background(), "Admin@Example.com", "Correct-Horse-9", "203.0.113.7", "test-agent")
	require.NoError(t, err)
	assert.False(t, result.MFARequired)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, user.Email, result.User.Email)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, models.AuditActionLogin, sink.Records[0].Action)
	assert.Equal(t, models.AuditEntitySession, sink.Records[0].EntityType)
}

func TestLogin_WrongPassword(t *testing.T) {
	user := userWithPassword(t, "admin@example.com", "Correct-Horse-9")
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc, sink := newAuthService(users, &MockAlertMailer{})

	_, err := svc.Login(context.Background(), "admin@example.com", "wrong-password", "203.0.113.7", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, false, sink.Records[0].After["success"])
}

func TestLogin_UnknownAccountSameError(t *testing.T) {
	svc, _ := newAuthService(&MockUserRepository{}, &MockAlertMailer{})

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever-123", "203.0.113.7", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_SuspendedAccountSameError(t *testing.T) {
	user := userWithPassword(t, "admin@example.com", "Correct-Horse-9")
	user.Status = "suspended"
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc, _ := newAuthService(users, &MockAlertMailer{})

	_, err := svc.Login(context.Background(), "admin@example.com", "Correct-Horse-9", "203.0.113.7", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_RateLimitedAfterFiveAttempts(t *testing.T) {
	svc, _ := newAuthService(&MockUserRepository{}, &MockAlertMailer{})
	ip := "198.51.100.1"

	for i := 0; i < 5; i++ {
		_, err := svc.Login(context.Background(), "nobody@example.com", "whatever-123", ip, "test-agent")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever-123", ip, "test-agent")
	require.ErrorIs(t, err, models.ErrRateLimitExceeded)

	var rl *RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Greater(t, rl.RetryAfterSeconds, 0)
}

func TestLogin_MFAEnrolledReturnsChallenge(t *testing.T) {
	user := userWithPassword(t, "admin@example.com", "Correct-Horse-9")
	user.MFAEnabled = true
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	svc, sink := newAuthService(users, &MockAlertMailer{})

	result, err := svc.Login(context.Background(), "admin@example.com", "Correct-Horse-9", "203.0.113.7", "test-agent")
	require.NoError(t, err)
	assert.True(t, result.MFARequired)
	assert.NotEmpty(t, result.MFAToken)
	assert.Empty(t, result.AccessToken)

	claims, err := testTokenManager().ValidateToken(result.MFAToken)
	require.NoError(t, err)
	assert.Equal(t, "mfa", claims.Type)

	// No session was issued, so nothing to audit yet
	assert.Empty(t, sink.Records)
}

func TestLogin_BanAlertAfterStrikeThreshold(t *testing.T) {
	alerts := &MockAlertMailer{}
	svc, _ := newAuthService(&MockUserRepository{}, alerts)
	ip := "198.51.100.9"

	// Each failed attempt records one strike; the limiter blocks logins after
	// five, but strikes keep accruing through the service's fail path. Drive
	// the strikes directly through repeated failures across limiter windows by
	// using distinct emails on the same IP until the threshold trips.
	for i := 0; i < 5; i++ {
		_, _ = svc.Login(context.Background(), fmt.Sprintf("u%d@example.com", i), "bad-pass-123", ip, "agent")
	}
	// Further attempts hit the rate limiter, which does not strike. Push the
	// remaining strikes through the limiter directly to cross the threshold.
	for i := 0; i < 4; i++ {
		svc.limiter.RecordStrike(ip)
	}
	banned := svc.limiter.RecordStrike(ip)
	assert.True(t, banned)

	_, err := svc.Login(context.Background(), "x@example.com", "bad-pass-123", ip, "agent")
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
}

func TestRefreshToken(t *testing.T) {
	user := userWithPassword(t, "admin@example.com", "Correct-Horse-9")
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}

	svc, _ := newAuthService(users, &MockAlertMailer{})

	login, err := svc.Login(context.Background(), "admin@example.com", "Correct-Horse-9", "203.0.113.7", "agent")
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// An access token must not work as a refresh token
	_, err = svc.RefreshToken(context.Background(), login.AccessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestIssueCustomerToken(t *testing.T) {
	svc, sink := newAuthService(&MockUserRepository{}, &MockAlertMailer{})
	actor := NewTestUser("admin@example.com", "Admin")

	tokenString, err := svc.IssueCustomerToken(context.Background(), actor.ID, "cust-42", "customer@example.com")
	require.NoError(t, err)

	claims := testIssuer().Verify(tokenString)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-42", claims.Subject)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, models.AuditActionCreate, sink.Records[0].Action)
}
