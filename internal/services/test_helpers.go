package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/token"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                func(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmailFunc             func(ctx context.Context, email string) (*models.User, error)
	ListFunc                   func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc                 func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc                 func(ctx context.Context, id uuid.UUID, user *models.User) (*models.User, error)
	DeleteFunc                 func(ctx context.Context, id uuid.UUID) error
	StorePendingTOTPSecretFunc func(ctx context.Context, id uuid.UUID, secretCiphertext, nonce []byte) error
	ConfirmMFAFunc             func(ctx context.Context, id uuid.UUID) error
	DisableMFAFunc             func(ctx context.Context, id uuid.UUID) error
	UpdatePasswordFunc         func(ctx context.Context, id uuid.UUID, passwordHash string) error
	AssignRoleFunc             func(ctx context.Context, id uuid.UUID, roleID *uuid.UUID) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = uuid.New()
	return user, nil
}

func (m *MockUserRepository) Update(ctx context.Context, id uuid.UUID, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return user, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) StorePendingTOTPSecret(ctx context.Context, id uuid.UUID, secretCiphertext, nonce []byte) error {
	if m.StorePendingTOTPSecretFunc != nil {
		return m.StorePendingTOTPSecretFunc(ctx, id, secretCiphertext, nonce)
	}
	return nil
}

func (m *MockUserRepository) ConfirmMFA(ctx context.Context, id uuid.UUID) error {
	if m.ConfirmMFAFunc != nil {
		return m.ConfirmMFAFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) DisableMFA(ctx context.Context, id uuid.UUID) error {
	if m.DisableMFAFunc != nil {
		return m.DisableMFAFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) AssignRole(ctx context.Context, id uuid.UUID, roleID *uuid.UUID) error {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, id, roleID)
	}
	return nil
}

// MockRoleRepository implements RoleRepository for testing
type MockRoleRepository struct {
	CreateFunc    func(ctx context.Context, role *models.Role) (*models.Role, error)
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetByNameFunc func(ctx context.Context, name string) (*models.Role, error)
	ListFunc      func(ctx context.Context) ([]*models.Role, error)
	UpdateFunc    func(ctx context.Context, id uuid.UUID, role *models.Role) (*models.Role, error)
	DeleteFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockRoleRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, role)
	}
	role.ID = uuid.New()
	return role, nil
}

func (m *MockRoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	return nil, models.ErrNotFound
}

func (m *MockRoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []*models.Role{}, nil
}

func (m *MockRoleRepository) Update(ctx context.Context, id uuid.UUID, role *models.Role) (*models.Role, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, role)
	}
	return role, nil
}

func (m *MockRoleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockRecoveryCodeRepository implements RecoveryCodeRepository for testing
type MockRecoveryCodeRepository struct {
	ReplaceForUserFunc  func(ctx context.Context, userID uuid.UUID, codeHashes []string) error
	GetUnusedByUserFunc func(ctx context.Context, userID uuid.UUID) ([]*models.RecoveryCode, error)
	ConsumeFunc         func(ctx context.Context, id uuid.UUID) error
	CountRemainingFunc  func(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteForUserFunc   func(ctx context.Context, userID uuid.UUID) error
}

func (m *MockRecoveryCodeRepository) ReplaceForUser(ctx context.Context, userID uuid.UUID, codeHashes []string) error {
	if m.ReplaceForUserFunc != nil {
		return m.ReplaceForUserFunc(ctx, userID, codeHashes)
	}
	return nil
}

func (m *MockRecoveryCodeRepository) GetUnusedByUser(ctx context.Context, userID uuid.UUID) ([]*models.RecoveryCode, error) {
	if m.GetUnusedByUserFunc != nil {
		return m.GetUnusedByUserFunc(ctx, userID)
	}
	return []*models.RecoveryCode{}, nil
}

func (m *MockRecoveryCodeRepository) Consume(ctx context.Context, id uuid.UUID) error {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	return nil
}

func (m *MockRecoveryCodeRepository) CountRemaining(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.CountRemainingFunc != nil {
		return m.CountRemainingFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockRecoveryCodeRepository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	if m.DeleteForUserFunc != nil {
		return m.DeleteForUserFunc(ctx, userID)
	}
	return nil
}

// MockSettingsRepository implements SettingsRepository for testing
type MockSettingsRepository struct {
	GetFunc    func(ctx context.Context) (*models.SecuritySettings, error)
	UpdateFunc func(ctx context.Context, settings *models.SecuritySettings) (*models.SecuritySettings, error)
	Stored     *models.SecuritySettings
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*models.SecuritySettings, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	if m.Stored != nil {
		return m.Stored, nil
	}
	return &models.SecuritySettings{AllowListRules: []string{}}, nil
}

func (m *MockSettingsRepository) Update(ctx context.Context, settings *models.SecuritySettings) (*models.SecuritySettings, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, settings)
	}
	stored := *settings
	stored.UpdatedAt = time.Now()
	m.Stored = &stored
	return &stored, nil
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	ListFunc         func(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error)
	ListByEntityFunc func(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error)
	ListByActorFunc  func(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditRecord, error)
	CountFunc        func(ctx context.Context) (int64, error)
}

func (m *MockAuditLogRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.AuditRecord{}, nil
}

func (m *MockAuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	if m.ListByEntityFunc != nil {
		return m.ListByEntityFunc(ctx, entityType, entityID, limit, offset)
	}
	return []*models.AuditRecord{}, nil
}

func (m *MockAuditLogRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditRecord, error) {
	if m.ListByActorFunc != nil {
		return m.ListByActorFunc(ctx, actorID, limit, offset)
	}
	return []*models.AuditRecord{}, nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

// MockAlertMailer records alerts for assertions
type MockAlertMailer struct {
	SendSecurityAlertFunc func(ctx context.Context, subject, body string) error
	Sent                  []string
}

func (m *MockAlertMailer) SendSecurityAlert(ctx context.Context, subject, body string) error {
	if m.SendSecurityAlertFunc != nil {
		return m.SendSecurityAlertFunc(ctx, subject, body)
	}
	m.Sent = append(m.Sent, subject)
	return nil
}

// captureSink collects audit records written during a test
type captureSink struct {
	Records []*models.AuditRecord
}

func (s *captureSink) Create(ctx context.Context, record *models.AuditRecord) error {
	s.Records = append(s.Records, record)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecorder() (*audit.Recorder, *captureSink) {
	sink := &captureSink{}
	return audit.NewRecorder(sink, testLogger()), sink
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(testLogger())
}

func testTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("test-secret-long-enough!", 15*time.Minute, 7*24*time.Hour)
}

func testIssuer() *token.Issuer {
	return token.NewIssuer("customer-secret-long-enough", 24*time.Hour)
}

func testTiming() *auth.TimingDelay {
	return auth.NewTimingDelay(0, 0)
}

// NewTestUser constructs an active user for tests
func NewTestUser(email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Role:      "viewer",
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
