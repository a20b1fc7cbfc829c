package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/totp"
)

// MFAService handles 2FA enrollment, verification, and recovery codes
type MFAService struct {
	users    UserRepository
	codes    RecoveryCodeRepository
	engine   *totp.Engine
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
	timing   *auth.TimingDelay
	alerts   AlertMailer
	logger   *slog.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(
	users UserRepository,
	codes RecoveryCodeRepository,
	engine *totp.Engine,
	limiter *ratelimit.Limiter,
	recorder *audit.Recorder,
	timing *auth.TimingDelay,
	alerts AlertMailer,
	logger *slog.Logger,
) *MFAService {
	return &MFAService{
		users:    users,
		codes:    codes,
		engine:   engine,
		limiter:  limiter,
		recorder: recorder,
		timing:   timing,
		alerts:   alerts,
		logger:   logger,
	}
}

// EnrollmentResponse carries what the client needs to configure an
// authenticator app. The plaintext secret appears here and nowhere else.
type EnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// Enroll generates a fresh TOTP secret for a user and stores it encrypted,
// pending confirmation. Re-calling before confirmation rotates the pending
// secret.
func (s *MFAService) Enroll(ctx context.Context, user *models.User) (*EnrollmentResponse, error) {
	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnrolled
	}

	secret, err := s.engine.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ciphertext, nonce, err := s.engine.EncryptSecret(secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.StorePendingTOTPSecret(ctx, user.ID, ciphertext, nonce); err != nil {
		s.logger.Error("failed to store pending TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	uri := s.engine.ProvisioningURI(secret, user.Email)
	qr, err := s.engine.QRCodeDataURL(uri)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("2fa enrollment started", slog.String("user_id", user.ID.String()))

	return &EnrollmentResponse{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
	}, nil
}

// Confirm verifies the first code against the pending secret, activates 2FA,
// and returns the recovery code batch. The plaintext codes are shown exactly
// once; only their bcrypt hashes survive this call.
func (s *MFAService) Confirm(ctx context.Context, user *models.User, code, ipAddress string) ([]string, error) {
	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnrolled
	}
	if len(user.TOTPSecretEncrypted) == 0 {
		return nil, models.ErrMFANotEnrolled
	}

	secret, err := s.engine.DecryptSecret(user.TOTPSecretEncrypted, user.TOTPSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt pending TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !s.engine.Validate(secret, code) {
		s.timing.Wait(false)
		return nil, models.ErrInvalidCode
	}

	recoveryCodes, err := s.engine.GenerateRecoveryCodes()
	if err != nil {
		s.logger.Error("failed to generate recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(recoveryCodes))
	for i, rc := range recoveryCodes {
		hash, err := bcrypt.GenerateFromPassword([]byte(rc), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("failed to hash recovery code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		hashes[i] = string(hash)
	}

	if err := s.codes.ReplaceForUser(ctx, user.ID, hashes); err != nil {
		s.logger.Error("failed to store recovery codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.ConfirmMFA(ctx, user.ID); err != nil {
		s.logger.Error("failed to confirm 2fa enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	actorID := user.ID
	entityID := user.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityMFA,
		EntityID:   &entityID,
		Before:     models.Snapshot{"mfa_enabled": false},
		After:      models.Snapshot{"mfa_enabled": true},
		IPAddress:  &ipAddress,
	})

	s.logger.Info("2fa enabled", slog.String("user_id", user.ID.String()))

	return recoveryCodes, nil
}

// Verify checks a TOTP code for an enrolled user. Failures strike the source
// IP and burn the shared timing delay.
func (s *MFAService) Verify(ctx context.Context, user *models.User, code, ipAddress string) error {
	if !user.MFAEnabled || len(user.TOTPSecretEncrypted) == 0 {
		return models.ErrMFANotEnrolled
	}

	res := s.limiter.Check(ipAddress, ratelimit.TypeLogin)
	if !res.Allowed {
		return &RateLimitedError{RetryAfterSeconds: res.RetryAfterSeconds}
	}

	secret, err := s.engine.DecryptSecret(user.TOTPSecretEncrypted, user.TOTPSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !s.engine.Validate(secret, code) {
		s.logger.Info("invalid TOTP code", slog.String("user_id", user.ID.String()))
		if s.limiter.RecordStrike(ipAddress) {
			s.logger.Warn("ip banned after repeated 2fa failures", slog.String("ip", ipAddress))
		}
		s.timing.Wait(false)
		return models.ErrInvalidCode
	}

	return nil
}

// VerifyRecoveryCode consumes a single-use recovery code. A code matches at
// most once, even under concurrent attempts.
func (s *MFAService) VerifyRecoveryCode(ctx context.Context, user *models.User, code, ipAddress string) error {
	if !user.MFAEnabled {
		return models.ErrMFANotEnrolled
	}

	res := s.limiter.Check(ipAddress, ratelimit.TypeSensitive)
	if !res.Allowed {
		return &RateLimitedError{RetryAfterSeconds: res.RetryAfterSeconds}
	}

	unused, err := s.codes.GetUnusedByUser(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to load recovery codes", slog.Any("error", err))
		return models.ErrInternalServer
	}

	for _, rc := range unused {
		if bcrypt.CompareHashAndPassword([]byte(rc.CodeHash), []byte(code)) != nil {
			continue
		}

		if err := s.codes.Consume(ctx, rc.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Lost the race to a concurrent attempt with the same code
				break
			}
			s.logger.Error("failed to consume recovery code", slog.Any("error", err))
			return models.ErrInternalServer
		}

		remaining, _ := s.codes.CountRemaining(ctx, user.ID)
		s.logger.Info("recovery code used",
			slog.String("user_id", user.ID.String()),
			slog.Int("codes_remaining", remaining))

		actorID := user.ID
		entityID := user.ID.String()
		s.recorder.Record(ctx, audit.Entry{
			ActorID:    &actorID,
			Action:     models.AuditActionUpdate,
			EntityType: models.AuditEntityMFA,
			EntityID:   &entityID,
			After:      models.Snapshot{"recovery_code_used": true, "codes_remaining": remaining},
			IPAddress:  &ipAddress,
		})

		return nil
	}

	if s.limiter.RecordStrike(ipAddress) {
		s.logger.Warn("ip banned after repeated recovery failures", slog.String("ip", ipAddress))
	}
	s.timing.Wait(false)
	return models.ErrInvalidCode
}

// Disable turns 2FA off, nulls the stored secret, deletes remaining recovery
// codes, and alerts ops. A valid current code is required.
func (s *MFAService) Disable(ctx context.Context, user *models.User, code, ipAddress string) error {
	if err := s.Verify(ctx, user, code, ipAddress); err != nil {
		return err
	}

	if err := s.users.DisableMFA(ctx, user.ID); err != nil {
		s.logger.Error("failed to disable 2fa", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.codes.DeleteForUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to delete recovery codes", slog.Any("error", err))
	}

	actorID := user.ID
	entityID := user.ID.String()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntityMFA,
		EntityID:   &entityID,
		Before:     models.Snapshot{"mfa_enabled": true},
		After:      models.Snapshot{"mfa_enabled": false},
		IPAddress:  &ipAddress,
	})

	s.logger.Info("2fa disabled", slog.String("user_id", user.ID.String()))

	if s.alerts != nil {
		subject := "Security alert: 2FA disabled"
		body := fmt.Sprintf("Two-factor authentication was disabled for account %s from IP %s.", user.Email, ipAddress)
		if err := s.alerts.SendSecurityAlert(ctx, subject, body); err != nil {
			s.logger.Error("failed to send 2fa disable alert", slog.Any("error", err))
		}
	}

	return nil
}

// RemainingRecoveryCodes reports how many unused codes the user has left
func (s *MFAService) RemainingRecoveryCodes(ctx context.Context, user *models.User) (int, error) {
	count, err := s.codes.CountRemaining(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to count recovery codes", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}
