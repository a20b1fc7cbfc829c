package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
)

// AuditService exposes read access to the audit trail. The trail itself is
// append-only; there are no mutation operations here.
type AuditService struct {
	records AuditLogRepository
	logger  *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(records AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{records: records, logger: logger}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns recent audit records, newest first
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.records.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list audit records", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return records, nil
}

// ListByEntity returns the change history of one entity
func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.records.ListByEntity(ctx, entityType, entityID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list entity audit records", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return records, nil
}

// ListByActor returns records produced by one actor
func (s *AuditService) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditRecord, error) {
	limit, offset = clampPage(limit, offset)

	records, err := s.records.ListByActor(ctx, actorID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list actor audit records", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return records, nil
}

// Count returns the total size of the trail
func (s *AuditService) Count(ctx context.Context) (int64, error) {
	count, err := s.records.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count audit records", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}
