package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bastionhq/bastion/internal/models"
)

// RoleStore is the identity collaborator consulted during resolution. A
// store miss or failure never surfaces to callers; resolution fails closed.
type RoleStore interface {
	// GetAssignedPermissions returns the permission set of the principal's
	// explicit role assignment, or models.ErrNotFound when the principal has
	// no record or no assigned role.
	GetAssignedPermissions(ctx context.Context, principalID string) ([]string, error)
}

// Resolver computes effective permission sets. Resolution order: explicit
// role assignment, then the static legacy-role defaults for a claimed role,
// then the empty set.
type Resolver struct {
	store  RoleStore
	logger *slog.Logger
}

// NewResolver creates a Resolver
func NewResolver(store RoleStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the effective permission set for a principal. claimedRole
// is the coarse role carried by the principal's credential; it is only
// consulted when the store has no record, to tolerate credential/identity
// desynchronization without hard-failing authorization checks.
//
// Resolve is total: lookup failures and bad stored data yield sets, never
// errors.
func (r *Resolver) Resolve(ctx context.Context, principalID, claimedRole string) []string {
	perms, err := r.store.GetAssignedPermissions(ctx, principalID)
	if err == nil {
		return models.FilterValidPermissions(perms)
	}

	if !errors.Is(err, models.ErrNotFound) {
		// Transient store failure: fail closed rather than fail open
		r.logger.ErrorContext(ctx, "permission lookup failed",
			slog.String("principal_id", principalID),
			slog.Any("error", err))
		return []string{}
	}

	if defaults, ok := models.DefaultRolePermissions[claimedRole]; ok {
		copied := make([]string, len(defaults))
		copy(copied, defaults)
		return copied
	}

	return []string{}
}

// Has reports whether the principal's effective set contains the permission
func (r *Resolver) Has(ctx context.Context, principalID, claimedRole, permission string) bool {
	return models.HasPermission(r.Resolve(ctx, principalID, claimedRole), permission)
}

// HasAny reports whether the principal holds at least one of the permissions
func (r *Resolver) HasAny(ctx context.Context, principalID, claimedRole string, permissions ...string) bool {
	perms := r.Resolve(ctx, principalID, claimedRole)
	for _, required := range permissions {
		if models.HasPermission(perms, required) {
			return true
		}
	}
	return false
}
