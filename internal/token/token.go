package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Claims is the fixed claim shape carried by customer bearer tokens
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Issuer signs and verifies compact bearer tokens for customer-facing auth:
// base64url(JSON claims) + "." + base64url(HMAC-SHA256 of the encoded
// claims). Deliberately not a general JWT implementation; only these two
// operations and the fixed claim shape are supported.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer with the given signing secret and token TTL
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the subject with the issuer's TTL
func (i *Issuer) Issue(subject, email string) (string, error) {
	now := i.now()
	claims := Claims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(i.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + i.sign(encoded), nil
}

// Verify checks a token's signature and expiry and returns its claims, or
// nil for any malformed, tampered, or expired token. The cause is never
// distinguished.
func (i *Issuer) Verify(tokenString string) *Claims {
	encoded, signature, ok := strings.Cut(tokenString, ".")
	if !ok || encoded == "" || signature == "" {
		return nil
	}

	// Recompute the MAC before trusting anything in the payload
	expected := i.sign(encoded)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}

	if claims.ExpiresAt <= i.now().Unix() {
		return nil
	}

	return &claims
}

func (i *Issuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
