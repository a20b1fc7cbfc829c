package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// MFAHandler handles 2FA enrollment and management for the authenticated user
type MFAHandler struct {
	mfaService *services.MFAService
	users      services.UserRepository
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(mfaService *services.MFAService, users services.UserRepository) *MFAHandler {
	return &MFAHandler{mfaService: mfaService, users: users}
}

// MFACodeRequest carries a TOTP code
type MFACodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=9"`
}

// RecoveryCodesResponse is returned exactly once, at confirmation
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// currentUser loads the authenticated principal's user record
func (h *MFAHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return nil, false
	}

	userID, err := uuid.Parse(principal.ID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return nil, false
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return nil, false
	}
	return user, true
}

// Enroll starts 2FA enrollment and returns the secret, otpauth URI, and QR
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	resp, err := h.mfaService.Enroll(r.Context(), user)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Confirm verifies the first code and activates 2FA. The response carries the
// recovery codes; they are not retrievable again.
func (h *MFAHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.mfaService.Confirm(r.Context(), user, req.Code, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}

// Disable turns 2FA off. Requires a valid current code.
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.mfaService.Disable(r.Context(), user, req.Code, pkghttp.ClientIP(r)); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Status reports 2FA state and remaining recovery codes
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	remaining := 0
	if user.MFAEnabled {
		var err error
		remaining, err = h.mfaService.RemainingRecoveryCodes(r.Context(), user)
		if err != nil {
			writeAuthError(w, err)
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"mfa_enabled":              user.MFAEnabled,
		"recovery_codes_remaining": remaining,
	})
}
