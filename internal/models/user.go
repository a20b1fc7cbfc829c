package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         string     // legacy coarse role: "admin", "editor", "viewer"
	RoleID       *uuid.UUID // explicit role assignment; authoritative when set
	Status       string     // "active", "suspended", "disabled"

	// Two-factor state. The TOTP secret is stored AES-256-GCM encrypted and
	// nulled when 2FA is disabled.
	MFAEnabled          bool
	TOTPSecretEncrypted []byte
	TOTPSecretNonce     []byte
	MFAEnrolledAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is a named, ordered set of permissions. A principal has at most one
// effective role at any time.
type Role struct {
	ID          uuid.UUID
	Name        string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecoveryCode is one of a fixed batch of single-use codes issued at 2FA
// enrollment. Only the bcrypt hash is ever stored.
type RecoveryCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

const RecoveryCodeCount = 10
