package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("Correct-Horse-9")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse-9", hash)

	assert.NoError(t, ComparePassword(hash, "Correct-Horse-9"))
	assert.Error(t, ComparePassword(hash, "wrong-password"))
}

func TestHashPassword_EmptyRejected(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Adequate-Pass1"))

	invalid := []string{
		"short1A",            // too short
		"alllowercase123",    // no upper
		"ALLUPPERCASE123",    // no lower
		"NoDigitsInHereAtAll", // no digit
	}
	for _, password := range invalid {
		assert.Error(t, ValidatePassword(password), "password %q should be invalid", password)
	}
}
