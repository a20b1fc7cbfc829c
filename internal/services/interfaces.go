package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
)

// UserRepository defines the user data access operations the services need
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	StorePendingTOTPSecret(ctx context.Context, id uuid.UUID, secretCiphertext, nonce []byte) error
	ConfirmMFA(ctx context.Context, id uuid.UUID) error
	DisableMFA(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	AssignRole(ctx context.Context, id uuid.UUID, roleID *uuid.UUID) error
}

// RoleRepository defines role data access operations
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) (*models.Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
	Update(ctx context.Context, id uuid.UUID, role *models.Role) (*models.Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecoveryCodeRepository defines recovery code storage operations
type RecoveryCodeRepository interface {
	ReplaceForUser(ctx context.Context, userID uuid.UUID, codeHashes []string) error
	GetUnusedByUser(ctx context.Context, userID uuid.UUID) ([]*models.RecoveryCode, error)
	Consume(ctx context.Context, id uuid.UUID) error
	CountRemaining(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

// AuditLogRepository defines read access to the audit trail
type AuditLogRepository interface {
	List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error)
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditRecord, error)
	Count(ctx context.Context) (int64, error)
}

// SettingsRepository defines security settings storage
type SettingsRepository interface {
	Get(ctx context.Context) (*models.SecuritySettings, error)
	Update(ctx context.Context, settings *models.SecuritySettings) (*models.SecuritySettings, error)
}

// AlertMailer notifies operators about security events. Implementations must
// be safe to call from request paths; sending is best-effort.
type AlertMailer interface {
	SendSecurityAlert(ctx context.Context, subject, body string) error
}
