package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// AuthHandler handles login, 2FA challenges, and session management
type AuthHandler struct {
	authService *services.AuthService
	mfaService  *services.MFAService
	users       services.UserRepository
	tm          *auth.TokenManager
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService, mfaService *services.MFAService, users services.UserRepository, tm *auth.TokenManager) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		mfaService:  mfaService,
		users:       users,
		tm:          tm,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// MFALoginRequest completes a pending 2FA challenge
type MFALoginRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required,min=6,max=9"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// CustomerTokenRequest asks for a compact customer bearer token
type CustomerTokenRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=128"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// Login authenticates with email and password. Enrolled users get a 2FA
// challenge instead of a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(),
		req.Email, req.Password, pkghttp.ClientIP(r), pkghttp.UserAgent(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// VerifyMFA finishes a 2FA login challenge with a TOTP code
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	h.completeMFAChallenge(w, r, func(ctx context.Context, user *models.User, code, ip string) error {
		return h.mfaService.Verify(ctx, user, code, ip)
	})
}

// RecoveryLogin finishes a 2FA login challenge with a single-use recovery code
func (h *AuthHandler) RecoveryLogin(w http.ResponseWriter, r *http.Request) {
	h.completeMFAChallenge(w, r, func(ctx context.Context, user *models.User, code, ip string) error {
		return h.mfaService.VerifyRecoveryCode(ctx, user, code, ip)
	})
}

func (h *AuthHandler) completeMFAChallenge(w http.ResponseWriter, r *http.Request, verify func(ctx context.Context, user *models.User, code, ip string) error) {
	var req MFALoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, ok := h.userFromMFAToken(r.Context(), req.MFAToken)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	ip := pkghttp.ClientIP(r)
	if err := verify(r.Context(), user, req.Code, ip); err != nil {
		writeAuthError(w, err)
		return
	}

	result, err := h.authService.CompleteMFALogin(r.Context(), user, ip, pkghttp.UserAgent(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// userFromMFAToken resolves the intermediate challenge token to its user
func (h *AuthHandler) userFromMFAToken(ctx context.Context, tokenString string) (*models.User, bool) {
	claims, err := h.tm.ValidateToken(tokenString)
	if err != nil || claims.Type != "mfa" {
		return nil, false
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, false
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil || user.Status != "active" {
		return nil, false
	}
	return user, true
}

// Refresh exchanges a refresh token for a new session pair
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Logout ends the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	userID, err := uuid.Parse(principal.ID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	h.authService.Logout(r.Context(), user, pkghttp.ClientIP(r), pkghttp.UserAgent(r))
	w.WriteHeader(http.StatusNoContent)
}

// IssueCustomerToken signs a compact customer bearer token
func (h *AuthHandler) IssueCustomerToken(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	actorID, err := uuid.Parse(principal.ID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CustomerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	tokenString, err := h.authService.IssueCustomerToken(r.Context(), actorID, req.Subject, req.Email)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"token": tokenString})
}

// writeAuthError maps service errors to HTTP responses. Credential failures
// of every flavor collapse into one generic 401.
func writeAuthError(w http.ResponseWriter, err error) {
	var rl *services.RateLimitedError
	switch {
	case errors.As(err, &rl):
		pkghttp.WriteTooManyRequests(w, rl.RetryAfterSeconds)
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, 0)
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrInvalidCode),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrMFANotEnrolled),
		errors.Is(err, models.ErrMFAAlreadyEnrolled),
		errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "conflict")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
