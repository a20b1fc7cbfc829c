package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/token"
	pkgauth "github.com/bastionhq/bastion/pkg/auth"
	pkglogger "github.com/bastionhq/bastion/pkg/logger"
)

// RateLimitedError carries the retry hint alongside the sentinel
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return models.ErrRateLimitExceeded.Error() }
func (e *RateLimitedError) Unwrap() error { return models.ErrRateLimitExceeded }

// AuthService handles authentication business logic
type AuthService struct {
	users    UserRepository
	limiter  *ratelimit.Limiter
	tm       *auth.TokenManager
	issuer   *token.Issuer
	recorder *audit.Recorder
	timing   *auth.TimingDelay
	alerts   AlertMailer
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	limiter *ratelimit.Limiter,
	tm *auth.TokenManager,
	issuer *token.Issuer,
	recorder *audit.Recorder,
	timing *auth.TimingDelay,
	alerts AlertMailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		limiter:  limiter,
		tm:       tm,
		issuer:   issuer,
		recorder: recorder,
		timing:   timing,
		alerts:   alerts,
		logger:   logger,
	}
}

// UserResponse represents a user in HTTP responses
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	MFAEnabled bool   `json:"mfa_enabled"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// LoginResult is the outcome of a successful credential check. When the user
// is enrolled in 2FA the session tokens are withheld and MFAToken carries the
// short-lived challenge credential instead.
type LoginResult struct {
	MFARequired  bool          `json:"mfa_required"`
	MFAToken     string        `json:"mfa_token,omitempty"`
	AccessToken  string        `json:"access_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

// Login authenticates an admin user. Every failure path returns the same
// generic error after the same timing delay, so callers cannot distinguish an
// unknown account from a wrong password or a suspended account.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	if banned, retryAfter := s.checkBan(ipAddress); banned {
		return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
	}

	res := s.limiter.Check(ipAddress, ratelimit.TypeLogin)
	if !res.Allowed {
		s.logger.Warn("login rate limited", slog.String("ip", ipAddress))
		return nil, &RateLimitedError{RetryAfterSeconds: res.RetryAfterSeconds}
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.timing.Wait(false)
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get user by email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.failLogin(ctx, nil, ipAddress, userAgent, "unknown_account")
		return nil, models.ErrInvalidCredentials
	}

	if user.Status != "active" {
		s.failLogin(ctx, user, ipAddress, userAgent, "account_"+user.Status)
		return nil, models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.failLogin(ctx, user, ipAddress, userAgent, "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	if user.MFAEnabled {
		mfaToken, err := s.tm.GenerateMFAToken(user)
		if err != nil {
			s.logger.Error("failed to generate mfa token", slog.String("user_id", user.ID.String()), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.logger.Info("login pending second factor", slog.String("user_id", user.ID.String()))
		return &LoginResult{MFARequired: true, MFAToken: mfaToken}, nil
	}

	return s.completeLogin(ctx, user, ipAddress, userAgent)
}

// CompleteMFALogin finishes a 2FA challenge. The session is only issued when
// the intermediate token and the TOTP code both check out.
func (s *AuthService) CompleteMFALogin(ctx context.Context, user *models.User, ipAddress, userAgent string) (*LoginResult, error) {
	return s.completeLogin(ctx, user, ipAddress, userAgent)
}

func (s *AuthService) completeLogin(ctx context.Context, user *models.User, ipAddress, userAgent string) (*LoginResult, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID.String()),
		slog.String("email", pkglogger.SanitizedEmail(user.Email)))

	actorID := user.ID
	entityID := user.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionLogin,
		EntityType: models.AuditEntitySession,
		EntityID:   &entityID,
		IPAddress:  &ipAddress,
		UserAgent:  &userAgent,
	})

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         UserToResponse(user),
	}, nil
}

// failLogin records the strike, the audit trail entry, and burns the timing
// delay shared by all credential failures
func (s *AuthService) failLogin(ctx context.Context, user *models.User, ipAddress, userAgent, reason string) {
	s.logger.Info("login failed", slog.String("reason", reason), slog.String("ip", ipAddress))

	if s.limiter.RecordStrike(ipAddress) {
		s.notifyBan(ctx, ipAddress)
	}

	entry := audit.Entry{
		Action:     models.AuditActionLogin,
		EntityType: models.AuditEntitySession,
		After:      models.Snapshot{"success": false, "reason": reason},
		IPAddress:  &ipAddress,
		UserAgent:  &userAgent,
	}
	if user != nil {
		actorID := user.ID
		entityID := user.ID.String()
		entry.ActorID = &actorID
		entry.EntityID = &entityID
	}
	s.recorder.Record(ctx, entry)

	s.timing.Wait(false)
}

func (s *AuthService) checkBan(ipAddress string) (bool, int) {
	if !s.limiter.IsBanned(ipAddress) {
		return false, 0
	}
	return true, s.limiter.BanRetryAfter(ipAddress)
}

// notifyBan sends the ops alert for a freshly installed hard ban. Best-effort.
func (s *AuthService) notifyBan(ctx context.Context, ipAddress string) {
	if s.alerts == nil {
		return
	}
	subject := "Security alert: IP banned"
	body := fmt.Sprintf("IP address %s exceeded the abuse strike threshold and has been banned for %s.",
		ipAddress, ratelimit.BanDuration)
	if err := s.alerts.SendSecurityAlert(ctx, subject, body); err != nil {
		s.logger.Error("failed to send ban alert", slog.String("ip", ipAddress), slog.Any("error", err))
	}
}

// RefreshToken exchanges a valid refresh token for a new session pair
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*LoginResult, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.Status != "active" {
		s.logger.Info("token refresh blocked due to account state",
			slog.String("user_id", user.ID.String()),
			slog.String("status", user.Status))
		return nil, models.ErrUnauthorized
	}

	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	newRefreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID.String()))

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         UserToResponse(user),
	}, nil
}

// IssueCustomerToken signs a compact bearer token for a customer-facing
// integration. Only admins holding users.write reach this path.
func (s *AuthService) IssueCustomerToken(ctx context.Context, actorID uuid.UUID, subject, email string) (string, error) {
	tokenString, err := s.issuer.Issue(subject, email)
	if err != nil {
		s.logger.Error("failed to issue customer token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	entityID := subject
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionCreate,
		EntityType: models.AuditEntitySession,
		EntityID:   &entityID,
		After:      models.Snapshot{"kind": "customer_token", "subject": subject},
	})

	return tokenString, nil
}

// Logout records the end of a session. Admin JWTs are stateless; the audit
// trail is the durable trace.
func (s *AuthService) Logout(ctx context.Context, user *models.User, ipAddress, userAgent string) {
	actorID := user.ID
	entityID := user.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionLogout,
		EntityType: models.AuditEntitySession,
		EntityID:   &entityID,
		IPAddress:  &ipAddress,
		UserAgent:  &userAgent,
	})
	s.logger.Info("user logged out", slog.String("user_id", user.ID.String()))
}

// UserToResponse converts a user model to its response DTO
func UserToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID.String(),
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		Status:     user.Status,
		MFAEnabled: user.MFAEnabled,
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
