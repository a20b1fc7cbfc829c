package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are carried by admin session JWTs (access and refresh).
// Customer bearer tokens use the compact format in internal/token instead.
type SessionClaims struct {
	Type   string `json:"type"` // "access" or "refresh"
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// Role is the legacy coarse role claim, used by the permission resolver
	// as a fallback when the user record is gone (stale credential).
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
