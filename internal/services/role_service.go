package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/models"
)

// RoleService manages named roles and their permission sets. Unknown
// permissions are dropped at write time; the enum is closed.
type RoleService struct {
	roles    RoleRepository
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewRoleService creates a new RoleService
func NewRoleService(roles RoleRepository, recorder *audit.Recorder, logger *slog.Logger) *RoleService {
	return &RoleService{roles: roles, recorder: recorder, logger: logger}
}

func roleSnapshot(role *models.Role) models.Snapshot {
	return models.Snapshot{
		"name":        role.Name,
		"permissions": role.Permissions,
	}
}

// List returns all roles
func (s *RoleService) List(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		s.logger.Error("failed to list roles", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return roles, nil
}

// GetByID returns a single role
func (s *RoleService) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get role", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return role, nil
}

// Create adds a new role. Permissions outside the known enum are silently
// filtered, matching resolution behavior.
func (s *RoleService) Create(ctx context.Context, actorID uuid.UUID, name string, permissions []string, ipAddress string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrBadRequest
	}

	created, err := s.roles.Create(ctx, &models.Role{
		Name:        name,
		Permissions: models.FilterValidPermissions(permissions),
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create role", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entityID := created.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionCreate,
		EntityType: models.AuditEntityRole,
		EntityID:   &entityID,
		After:      roleSnapshot(created),
		IPAddress:  &ipAddress,
	})

	s.logger.Info("role created", slog.String("role_id", created.ID.String()), slog.String("name", name))
	return created, nil
}

// Update replaces a role's name and permission set
func (s *RoleService) Update(ctx context.Context, actorID, id uuid.UUID, name string, permissions []string, ipAddress string) (*models.Role, error) {
	current, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get role for update", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = current.Name
	}

	updated, err := s.roles.Update(ctx, id, &models.Role{
		Name:        name,
		Permissions: models.FilterValidPermissions(permissions),
	})
	if err != nil {
		s.logger.Error("failed to update role", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entityID := id.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityRole,
		EntityID:   &entityID,
		Before:     roleSnapshot(current),
		After:      roleSnapshot(updated),
		IPAddress:  &ipAddress,
	})

	return updated, nil
}

// Delete removes a role. Users pointing at it fall back to their legacy
// coarse role at resolution time.
func (s *RoleService) Delete(ctx context.Context, actorID, id uuid.UUID, ipAddress string) error {
	current, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get role for delete", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete role", slog.Any("error", err))
		return models.ErrInternalServer
	}

	entityID := id.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionDelete,
		EntityType: models.AuditEntityRole,
		EntityID:   &entityID,
		Before:     roleSnapshot(current),
		IPAddress:  &ipAddress,
	})

	s.logger.Info("role deleted", slog.String("role_id", id.String()))
	return nil
}
