package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/models"
)

// Sink accepts append-only audit records. The recorder makes at most one
// synchronous attempt per record with no retry; fire-and-forget semantics
// are acceptable for implementations.
type Sink interface {
	Create(ctx context.Context, record *models.AuditRecord) error
}

// Entry describes a single auditable side effect
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   *string
	Before     models.Snapshot
	After      models.Snapshot
	IPAddress  *string
	UserAgent  *string
}

// Recorder builds and persists audit records. Recording is best-effort:
// persistence failures are logged and swallowed so that audit trouble never
// blocks the primary operation it accompanies.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

// Record computes the before/after diff and persists the record. It never
// returns an error.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	record := &models.AuditRecord{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Before:     entry.Before,
		After:      entry.After,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}

	if entry.Before != nil || entry.After != nil {
		if summary := Diff(entry.Before, entry.After); summary != "" {
			record.DiffSummary = &summary
		}
	}

	// Dual-write: immediate slog output alongside the persistent record
	r.logger.InfoContext(ctx, "audit event",
		slog.Any("actor_id", entry.ActorID),
		slog.String("action", entry.Action),
		slog.String("entity_type", entry.EntityType),
		slog.Any("entity_id", entry.EntityID),
	)

	if err := r.sink.Create(ctx, record); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist audit record",
			slog.String("action", entry.Action),
			slog.String("entity_type", entry.EntityType),
			slog.Any("error", err),
		)
	}
}
