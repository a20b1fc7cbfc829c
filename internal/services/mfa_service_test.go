package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/totp"
)

var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")

func newMFAService(t *testing.T, users *MockUserRepository, codes *MockRecoveryCodeRepository, alerts *MockAlertMailer) (*MFAService, *totp.Engine, *captureSink) {
	t.Helper()
	engine, err := totp.NewEngine(testEncryptionKey, "Bastion Admin")
	require.NoError(t, err)

	recorder, sink := testRecorder()
	svc := NewMFAService(users, codes, engine, testLimiter(), recorder, testTiming(), alerts, testLogger())
	return svc, engine, sink
}

func enrolledUser(t *testing.T, engine *totp.Engine) (*models.User, string) {
	t.Helper()
	secret, err := engine.GenerateSecret()
	require.NoError(t, err)

	ciphertext, nonce, err := engine.EncryptSecret(secret)
	require.NoError(t, err)

	user := NewTestUser("admin@example.com", "Admin")
	user.MFAEnabled = true
	user.TOTPSecretEncrypted = ciphertext
	user.TOTPSecretNonce = nonce
	return user, secret
}

func TestEnroll(t *testing.T) {
	var storedCiphertext, storedNonce []byte
	users := &MockUserRepository{
		StorePendingTOTPSecretFunc: func(ctx context.Context, id uuid.UUID, ciphertext, nonce []byte) error {
			storedCiphertext, storedNonce = ciphertext, nonce
			return nil
		},
	}

	svc, engine, _ := newMFAService(t, users, &MockRecoveryCodeRepository{}, &MockAlertMailer{})

	user := NewTestUser("admin@example.com", "Admin")

	resp, err := svc.Enroll(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, resp.ProvisioningURI, "admin%40example.com")
	assert.Contains(t, resp.QRCode, "data:image/png;base64,")

	// The stored ciphertext decrypts back to the secret handed to the client
	decrypted, err := engine.DecryptSecret(storedCiphertext, storedNonce)
	require.NoError(t, err)
	assert.Equal(t, resp.Secret, decrypted)
}

func TestEnroll_AlreadyEnrolled(t *testing.T) {
	svc, _, _ := newMFAService(t, &MockUserRepository{}, &MockRecoveryCodeRepository{}, &MockAlertMailer{})

	user := NewTestUser("admin@example.com", "Admin")
	user.MFAEnabled = true

	_, err := svc.Enroll(context.Background(), user)
	assert.ErrorIs(t, err, models.ErrMFAAlreadyEnrolled)
}

func TestConfirm(t *testing.T) {
	var storedHashes []string
	confirmed := false
	users := &MockUserRepository{}
	codes := &MockRecoveryCodeRepository{}

	svc, engine, sink := newMFAService(t, users, codes, &MockAlertMailer{})

	user, secret := enrolledUser(t, engine)
	user.MFAEnabled = false // pending secret, not yet confirmed

	codes.ReplaceForUserFunc = func(ctx context.Context, userID uuid.UUID, codeHashes []string) error {
		storedHashes = codeHashes
		return nil
	}
	users.ConfirmMFAFunc = func(ctx context.Context, id uuid.UUID) error {
		confirmed = true
		return nil
	}

	code, err := engine.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	recoveryCodes, err := svc.Confirm(context.Background(), user, code, "203.0.113.7")
	require.NoError(t, err)
	require.Len(t, recoveryCodes, models.RecoveryCodeCount)

	format := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)
	for _, rc := range recoveryCodes {
		assert.Regexp(t, format, rc)
	}

	// Stored hashes match the plaintext codes and are not the codes themselves
	require.Len(t, storedHashes, models.RecoveryCodeCount)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHashes[0]), []byte(recoveryCodes[0])))
	assert.True(t, confirmed)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, models.AuditEntityMFA, sink.Records[0].EntityType)
}

func TestConfirm_BadCode(t *testing.T) {
	svc, engine, _ := newMFAService(t, &MockUserRepository{}, &MockRecoveryCodeRepository{}, &MockAlertMailer{})

	user, _ := enrolledUser(t, engine)
	user.MFAEnabled = false

	_, err := svc.Confirm(context.Background(), user, "000000", "203.0.113.7")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestVerify(t *testing.T) {
	svc, engine, _ := newMFAService(t, &MockUserRepository{}, &MockRecoveryCodeRepository{}, &MockAlertMailer{})

	user, secret := enrolledUser(t, engine)

	code, err := engine.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.NoError(t, svc.Verify(context.Background(), user, code, "203.0.113.7"))
	assert.ErrorIs(t, svc.Verify(context.Background(), user, "000000", "203.0.113.7"), models.ErrInvalidCode)
}

func TestVerify_NotEnrolled(t *testing.T) {
	svc, _, _ := newMFAService(t, &MockUserRepository{}, &MockRecoveryCodeRepository{}, &MockAlertMailer{})

	user := NewTestUser("admin@example.com", "Admin")
	err := svc.Verify(context.Background(), user, "123456", "203.0.113.7")
	assert.ErrorIs(t, err, models.ErrMFANotEnrolled)
}

func TestVerifyRecoveryCode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("A1B2-C3D4"), bcrypt.MinCost)
	require.NoError(t, err)

	consumed := false
	codes := &MockRecoveryCodeRepository{}

	svc, engine, _ := newMFAService(t, &MockUserRepository{}, codes, &MockAlertMailer{})
	user, _ := enrolledUser(t, engine)

	stored := &models.RecoveryCode{ID: user.ID, UserID: user.ID, CodeHash: string(hash)}
	codes.GetUnusedByUserFunc = func(ctx context.Context, userID uuid.UUID) ([]*models.RecoveryCode, error) {
		return []*models.RecoveryCode{stored}, nil
	}
	codes.ConsumeFunc = func(ctx context.Context, id uuid.UUID) error {
		consumed = true
		return nil
	}
	codes.CountRemainingFunc = func(ctx context.Context, userID uuid.UUID) (int, error) {
		return models.RecoveryCodeCount - 1, nil
	}

	require.NoError(t, svc.VerifyRecoveryCode(context.Background(), user, "A1B2-C3D4", "203.0.113.7"))
	assert.True(t, consumed)

	assert.ErrorIs(t,
		svc.VerifyRecoveryCode(context.Background(), user, "XXXX-YYYY", "203.0.113.7"),
		models.ErrInvalidCode)
}

func TestDisable(t *testing.T) {
	disabled := false
	deleted := false
	users := &MockUserRepository{}
	codes := &MockRecoveryCodeRepository{}
	alerts := &MockAlertMailer{}

	svc, engine, sink := newMFAService(t, users, codes, alerts)
	user, secret := enrolledUser(t, engine)

	users.DisableMFAFunc = func(ctx context.Context, id uuid.UUID) error {
		disabled = true
		return nil
	}
	codes.DeleteForUserFunc = func(ctx context.Context, userID uuid.UUID) error {
		deleted = true
		return nil
	}

	code, err := engine.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.Disable(context.Background(), user, code, "203.0.113.7"))
	assert.True(t, disabled)
	assert.True(t, deleted)
	assert.Len(t, alerts.Sent, 1)

	require.Len(t, sink.Records, 1)
	assert.Equal(t, false, sink.Records[0].After["mfa_enabled"])
}

func TestDisable_BadCodeKeepsMFA(t *testing.T) {
	svc, engine, _ := newMFAService(t, &MockUserRepository{}, &MockRecoveryCodeRepository{}, &MockAlertMailer{})
	user, _ := enrolledUser(t, engine)

	err := svc.Disable(context.Background(), user, "000000", "203.0.113.7")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}
