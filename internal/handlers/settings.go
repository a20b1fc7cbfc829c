package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// SettingsHandler handles security settings endpoints
type SettingsHandler struct {
	settingsService *services.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settingsService *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// AllowListRequest replaces the allow-list configuration
type AllowListRequest struct {
	Enabled bool     `json:"enabled"`
	Rules   []string `json:"rules" validate:"required,max=256,dive,min=1,max=64"`
}

// SettingsResponse represents the security settings in API responses
type SettingsResponse struct {
	AllowListEnabled bool     `json:"allow_list_enabled"`
	AllowListRules   []string `json:"allow_list_rules"`
}

func settingsToResponse(settings *models.SecuritySettings) *SettingsResponse {
	return &SettingsResponse{
		AllowListEnabled: settings.AllowListEnabled,
		AllowListRules:   settings.AllowListRules,
	}
}

// Get returns the current security settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.Get(r.Context())
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, settingsToResponse(settings))
}

// UpdateAllowList replaces the allow-list configuration
func (h *SettingsHandler) UpdateAllowList(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req AllowListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	settings, err := h.settingsService.UpdateAllowList(r.Context(),
		actorID, req.Enabled, req.Rules, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, settingsToResponse(settings))
}
