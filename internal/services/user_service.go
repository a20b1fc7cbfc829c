package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/models"
	pkgauth "github.com/bastionhq/bastion/pkg/auth"
)

// UserService handles user administration. Mutations are audited with
// before/after snapshots.
type UserService struct {
	users    UserRepository
	roles    RoleRepository
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(users UserRepository, roles RoleRepository, recorder *audit.Recorder, logger *slog.Logger) *UserService {
	return &UserService{users: users, roles: roles, recorder: recorder, logger: logger}
}

func userSnapshot(user *models.User) models.Snapshot {
	snap := models.Snapshot{
		"email":  user.Email,
		"name":   user.Name,
		"role":   user.Role,
		"status": user.Status,
	}
	if user.RoleID != nil {
		snap["role_id"] = user.RoleID.String()
	}
	return snap
}

// GetByID returns a single user
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id.String()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// List returns a page of users
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return users, nil
}

// Create registers a new user account
func (s *UserService) Create(ctx context.Context, actorID uuid.UUID, email, password, name, role, ipAddress string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" || name == "" {
		return nil, models.ErrBadRequest
	}
	if _, ok := models.DefaultRolePermissions[role]; role != "" && !ok {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBadRequest, err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.users.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entityID := created.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionCreate,
		EntityType: models.AuditEntityUser,
		EntityID:   &entityID,
		After:      userSnapshot(created),
		IPAddress:  &ipAddress,
	})

	s.logger.Info("user created", slog.String("user_id", created.ID.String()))
	return created, nil
}

// Update modifies a user's profile fields
func (s *UserService) Update(ctx context.Context, actorID, id uuid.UUID, name, role, status, ipAddress string) (*models.User, error) {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user for update", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	next := *current
	if name != "" {
		next.Name = strings.TrimSpace(name)
	}
	if role != "" {
		if _, ok := models.DefaultRolePermissions[role]; !ok {
			return nil, models.ErrBadRequest
		}
		next.Role = role
	}
	if status != "" {
		switch status {
		case "active", "suspended", "disabled":
			next.Status = status
		default:
			return nil, models.ErrBadRequest
		}
	}

	updated, err := s.users.Update(ctx, id, &next)
	if err != nil {
		s.logger.Error("failed to update user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entityID := id.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityUser,
		EntityID:   &entityID,
		Before:     userSnapshot(current),
		After:      userSnapshot(updated),
		IPAddress:  &ipAddress,
	})

	return updated, nil
}

// Delete removes a user account
func (s *UserService) Delete(ctx context.Context, actorID, id uuid.UUID, ipAddress string) error {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for delete", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete user", slog.Any("error", err))
		return models.ErrInternalServer
	}

	entityID := id.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionDelete,
		EntityType: models.AuditEntityUser,
		EntityID:   &entityID,
		Before:     userSnapshot(current),
		IPAddress:  &ipAddress,
	})

	s.logger.Info("user deleted", slog.String("user_id", id.String()))
	return nil
}

// AssignRole points a user at an explicit role, or clears the assignment
// when roleID is nil
func (s *UserService) AssignRole(ctx context.Context, actorID, userID uuid.UUID, roleID *uuid.UUID, ipAddress string) error {
	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for role assignment", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if roleID != nil {
		if _, err := s.roles.GetByID(ctx, *roleID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrBadRequest
			}
			s.logger.Error("failed to verify role", slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	if err := s.users.AssignRole(ctx, userID, roleID); err != nil {
		s.logger.Error("failed to assign role", slog.Any("error", err))
		return models.ErrInternalServer
	}

	before := models.Snapshot{}
	after := models.Snapshot{}
	if current.RoleID != nil {
		before["role_id"] = current.RoleID.String()
	}
	if roleID != nil {
		after["role_id"] = roleID.String()
	}

	entityID := userID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityUser,
		EntityID:   &entityID,
		Before:     before,
		After:      after,
		IPAddress:  &ipAddress,
	})

	s.logger.Info("role assigned",
		slog.String("user_id", userID.String()),
		slog.Any("role_id", roleID))
	return nil
}
