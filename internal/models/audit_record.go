package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionLogin  = "login"
	AuditActionLogout = "logout"
)

// Entity kinds
const (
	AuditEntityUser     = "user"
	AuditEntityRole     = "role"
	AuditEntitySettings = "security_settings"
	AuditEntitySession  = "session"
	AuditEntityMFA      = "mfa"
)

// AuditRecord is immutable once created. Records are append-only; this core
// exposes no update or delete operation for them.
type AuditRecord struct {
	ID         uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   *string
	Before     Snapshot
	After      Snapshot
	// DiffSummary is a denormalized convenience string; Before/After are the
	// source of truth for exact reconstruction.
	DiffSummary *string
	IPAddress   *string
	UserAgent   *string
	CreatedAt   time.Time
}

// Snapshot holds a structured key/value view of an entity at a point in time
type Snapshot map[string]any

// Scan implements sql.Scanner for JSONB
func (s *Snapshot) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]any
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*s = Snapshot(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
