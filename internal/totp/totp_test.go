package totp

import (
	"crypto/rand"
	"encoding/base32"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	e, err := NewEngine(key, "Bastion")
	require.NoError(t, err)
	return e
}

func TestNewEngine_RejectsBadKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		e, err := NewEngine(make([]byte, length), "Bastion")
		assert.Error(t, err)
		assert.Nil(t, e)
	}
}

func TestGenerateSecret_Base32WithEnoughEntropy(t *testing.T) {
	e := newTestEngine(t)

	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	// 256 bits of entropy, comfortably above the 160-bit floor
	assert.GreaterOrEqual(t, len(raw), 20)
}

func TestGenerateSecret_Unique(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.GenerateSecret()
	require.NoError(t, err)
	b, err := e.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateAt_ToleranceWindow(t *testing.T) {
	e := newTestEngine(t)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	code, err := e.GenerateCode(secret, now)
	require.NoError(t, err)
	require.Len(t, code, 6)

	// Exact window and ±30s are accepted
	assert.True(t, e.ValidateAt(secret, code, now))
	assert.True(t, e.ValidateAt(secret, code, now.Add(-30*time.Second)))
	assert.True(t, e.ValidateAt(secret, code, now.Add(30*time.Second)))

	// Beyond the 90-second tolerance is rejected
	assert.False(t, e.ValidateAt(secret, code, now.Add(-90*time.Second)))
	assert.False(t, e.ValidateAt(secret, code, now.Add(90*time.Second)))
	assert.False(t, e.ValidateAt(secret, code, now.Add(time.Hour)))
}

func TestValidateAt_BadInputIsJustInvalid(t *testing.T) {
	e := newTestEngine(t)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	assert.False(t, e.ValidateAt(secret, "000000", now))
	assert.False(t, e.ValidateAt(secret, "", now))
	assert.False(t, e.ValidateAt(secret, "not-a-code", now))
	assert.False(t, e.ValidateAt("not base32!!", "123456", now))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	ciphertext, nonce, err := e.EncryptSecret(secret)
	require.NoError(t, err)
	assert.Len(t, nonce, 12)
	assert.NotContains(t, string(ciphertext), secret)

	decrypted, err := e.DecryptSecret(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, decrypted)
}

func TestDecryptSecret_WrongKeyFails(t *testing.T) {
	e := newTestEngine(t)
	other := newTestEngine(t)

	ciphertext, nonce, err := e.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.DecryptSecret(ciphertext, nonce)
	assert.Error(t, err)
}

func TestDecryptSecret_TamperedCiphertextFails(t *testing.T) {
	e := newTestEngine(t)

	ciphertext, nonce, err := e.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF
	_, err = e.DecryptSecret(ciphertext, nonce)
	assert.Error(t, err)
}

func TestProvisioningURI(t *testing.T) {
	e := newTestEngine(t)

	uri := e.ProvisioningURI("JBSWY3DPEHPK3PXP", "admin@example.com")
	assert.Contains(t, uri, "otpauth://totp/")
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=Bastion")
	assert.Contains(t, uri, "period=30")
	assert.Contains(t, uri, "digits=6")
}

func TestQRCodeDataURL(t *testing.T) {
	e := newTestEngine(t)

	uri := e.ProvisioningURI("JBSWY3DPEHPK3PXP", "admin@example.com")
	dataURL, err := e.QRCodeDataURL(uri)
	require.NoError(t, err)
	assert.Contains(t, dataURL, "data:image/png;base64,")
}

func TestGenerateRecoveryCodes_FormatAndUniqueness(t *testing.T) {
	e := newTestEngine(t)

	codes, err := e.GenerateRecoveryCodes()
	require.NoError(t, err)
	require.Len(t, codes, 10)

	pattern := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)
	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "recovery codes must be unique: %s", code)
		seen[code] = true
	}
}

func TestBase32RoundTrip(t *testing.T) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	for length := 1; length <= 64; length++ {
		raw := make([]byte, length)
		_, err := rand.Read(raw)
		require.NoError(t, err)

		decoded, err := enc.DecodeString(enc.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, decoded, "length %d", length)
	}
}
