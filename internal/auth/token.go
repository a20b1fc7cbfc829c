package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
)

// TokenManager handles admin session JWT generation and validation. Customer
// bearer tokens use the compact format in internal/token instead.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// GenerateAccessToken creates a short-lived admin access token
func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, error) {
	return tm.generate("access", user, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a long-lived admin refresh token
func (tm *TokenManager) GenerateRefreshToken(user *models.User) (string, error) {
	return tm.generate("refresh", user, tm.refreshTokenExpiry)
}

// GenerateMFAToken creates the short-lived intermediate token handed out when
// a password check succeeds but a second factor is still required. It grants
// nothing except the right to attempt 2FA verification.
func (tm *TokenManager) GenerateMFAToken(user *models.User) (string, error) {
	return tm.generate("mfa", user, 5*time.Minute)
}

func (tm *TokenManager) generate(tokenType string, user *models.User, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &models.SessionClaims{
		Type:   tokenType,
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies a session token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
