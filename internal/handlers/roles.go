package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// RoleHandler handles role management endpoints
type RoleHandler struct {
	roleService *services.RoleService
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(roleService *services.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// RoleRequest represents the request body for creating or updating a role
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=64"`
	Permissions []string `json:"permissions" validate:"required"`
}

// RoleResponse represents a role in API responses
type RoleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func roleToResponse(role *models.Role) *RoleResponse {
	return &RoleResponse{
		ID:          role.ID.String(),
		Name:        role.Name,
		Permissions: role.Permissions,
		CreatedAt:   role.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   role.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List returns all roles
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roleService.List(r.Context())
	if err != nil {
		writeAuthError(w, err)
		return
	}

	responses := make([]*RoleResponse, 0, len(roles))
	for _, role := range roles {
		responses = append(responses, roleToResponse(role))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"roles": responses})
}

// Get returns a single role
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid role ID")
		return
	}

	role, err := h.roleService.GetByID(r.Context(), id)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, roleToResponse(role))
}

// Create adds a new role
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.roleService.Create(r.Context(), actorID, req.Name, req.Permissions, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, roleToResponse(role))
}

// Update replaces a role's name and permission set
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid role ID")
		return
	}

	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.roleService.Update(r.Context(), actorID, id, req.Name, req.Permissions, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, roleToResponse(role))
}

// Delete removes a role
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid role ID")
		return
	}

	if err := h.roleService.Delete(r.Context(), actorID, id, pkghttp.ClientIP(r)); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Permissions returns the closed permission enum for role editors
func (h *RoleHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"permissions": models.AllPermissions()})
}
