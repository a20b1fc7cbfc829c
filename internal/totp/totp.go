package totp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/bastionhq/bastion/internal/models"
)

const (
	// secretSize is the raw entropy of a generated secret in bytes (256 bits)
	secretSize = 32
	period     = 30
	// skew allows ±1 time step, a 90-second total tolerance window
	skew = 1
)

// Engine handles TOTP generation, validation, secret encryption, and
// recovery codes. Secrets at rest are always AES-256-GCM encrypted; plaintext
// exists only transiently for code generation and verification.
type Engine struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string
}

// NewEngine creates a TOTP engine. encryptionKey must be exactly 32 bytes.
func NewEngine(encryptionKey []byte, issuer string) (*Engine, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	return &Engine{encryptionKey: encryptionKey, issuer: issuer}, nil
}

// GenerateSecret creates a new base32-encoded TOTP secret
func (e *Engine) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: "user",
		SecretSize:  secretSize,
		Period:      period,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

// GenerateCode computes the six-digit code for a secret at the given time
func (e *Engine) GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// Validate checks a code against a secret at the current time
func (e *Engine) Validate(secret, code string) bool {
	return e.ValidateAt(secret, code, time.Now())
}

// ValidateAt checks a code against a secret at an explicit time, accepting
// the previous, current, and next 30-second counters. The comparison inside
// the library is constant-time. Any validation error reads as invalid; the
// caller never learns why.
func (e *Engine) ValidateAt(secret, code string, t time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// ProvisioningURI returns the otpauth URI for an existing secret, suitable
// for client-side QR rendering
func (e *Engine) ProvisioningURI(secret, account string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", e.issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", fmt.Sprintf("%d", period))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + e.issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// QRCodeDataURL renders an otpauth URI as a PNG data URL
func (e *Engine) QRCodeDataURL(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// EncryptSecret encrypts a TOTP secret with AES-256-GCM.
// Returns (ciphertext, nonce, error).
func (e *Engine) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(e.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (e *Engine) DecryptSecret(ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(e.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

// GenerateRecoveryCodes generates the fixed batch of single-use recovery
// codes issued at enrollment. Format: XXXX-XXXX, four random bytes hex
// encoded and uppercased.
func (e *Engine) GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, models.RecoveryCodeCount)
	for i := range codes {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		hexCode := strings.ToUpper(hex.EncodeToString(raw))
		codes[i] = hexCode[:4] + "-" + hexCode[4:]
	}
	return codes, nil
}
