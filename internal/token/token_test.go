package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	tok, err := issuer.Issue("cust-42", "customer@example.com")
	require.NoError(t, err)
	assert.Contains(t, tok, ".")

	claims := issuer.Verify(tok)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-42", claims.Subject)
	assert.Equal(t, "customer@example.com", claims.Email)
	assert.Greater(t, claims.ExpiresAt, claims.IssuedAt)
}

func TestVerify_ExpiredTokenFailsEvenWithValidSignature(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	// Issue with a clock one hour and a bit in the past so exp has lapsed
	issuer.now = func() time.Time { return time.Now().Add(-2*time.Hour - time.Minute) }
	tok, err := issuer.Issue("cust-42", "")
	require.NoError(t, err)

	issuer.now = time.Now
	assert.Nil(t, issuer.Verify(tok))
}

func TestVerify_FutureExpiryPasses(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	tok, err := issuer.Issue("cust-42", "")
	require.NoError(t, err)
	assert.NotNil(t, issuer.Verify(tok))
}

func TestVerify_TamperedClaimsRejected(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	tok, err := issuer.Issue("cust-42", "")
	require.NoError(t, err)

	encoded, signature, _ := strings.Cut(tok, ".")
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var claims Claims
	require.NoError(t, json.Unmarshal(payload, &claims))
	claims.Subject = "cust-1"
	forged, err := json.Marshal(claims)
	require.NoError(t, err)

	tampered := base64.RawURLEncoding.EncodeToString(forged) + "." + signature
	assert.Nil(t, issuer.Verify(tampered))
}

func TestVerify_WrongSecretRejected(t *testing.T) {
	issuer := NewIssuer("secret-one-with-enough-length!", time.Hour)
	other := NewIssuer("secret-two-with-enough-length!", time.Hour)

	tok, err := issuer.Issue("cust-42", "")
	require.NoError(t, err)
	assert.Nil(t, other.Verify(tok))
}

func TestVerify_MalformedTokensReturnNil(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	malformed := []string{
		"",
		"no-dot-at-all",
		".only-signature",
		"only-payload.",
		"a.b.c",
		"!!!not-base64!!!." + strings.Repeat("a", 43),
	}
	for _, tok := range malformed {
		assert.Nil(t, issuer.Verify(tok), "token %q should not verify", tok)
	}
}

func TestVerify_SignatureOverEncodedClaims(t *testing.T) {
	issuer := NewIssuer("test-secret-with-enough-length", time.Hour)

	tok, err := issuer.Issue("cust-42", "")
	require.NoError(t, err)

	// Swapping in a different signature of the right length must fail
	encoded, _, _ := strings.Cut(tok, ".")
	fake := encoded + "." + base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	assert.Nil(t, issuer.Verify(fake))
}
