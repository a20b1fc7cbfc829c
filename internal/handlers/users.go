package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// UserHandler handles user administration endpoints
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=12"`
	Name     string `json:"name" validate:"required,min=1,max=255"`
	Role     string `json:"role" validate:"omitempty,oneof=admin editor viewer"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name   string `json:"name" validate:"omitempty,min=1,max=255"`
	Role   string `json:"role" validate:"omitempty,oneof=admin editor viewer"`
	Status string `json:"status" validate:"omitempty,oneof=active suspended disabled"`
}

// AssignRoleRequest points a user at an explicit role. A null role_id clears
// the assignment.
type AssignRoleRequest struct {
	RoleID *string `json:"role_id"`
}

// List returns a page of users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	users, err := h.userService.List(r.Context(), limit, offset)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	responses := make([]*services.UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, services.UserToResponse(user))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"users": responses})
}

// Get returns a single user
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, services.UserToResponse(user))
}

// Create registers a new user account
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.userService.Create(r.Context(),
		actorID, req.Email, req.Password, req.Name, req.Role, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, services.UserToResponse(user))
}

// Update modifies a user's profile fields
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.userService.Update(r.Context(),
		actorID, id, req.Name, req.Role, req.Status, pkghttp.ClientIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, services.UserToResponse(user))
}

// Delete removes a user account
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return
	}

	if err := h.userService.Delete(r.Context(), actorID, id, pkghttp.ClientIP(r)); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignRole sets or clears a user's explicit role assignment
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return
	}

	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	var roleID *uuid.UUID
	if req.RoleID != nil {
		parsed, err := uuid.Parse(*req.RoleID)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid role ID")
			return
		}
		roleID = &parsed
	}

	if err := h.userService.AssignRole(r.Context(), actorID, id, roleID, pkghttp.ClientIP(r)); err != nil {
		writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
