package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion/internal/models"
)

type fakeSink struct {
	records []*models.AuditRecord
	err     error
}

func (f *fakeSink) Create(_ context.Context, record *models.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecord_PersistsRecordWithDiff(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink, discardLogger())

	actorID := uuid.New()
	entityID := "prod-1"
	r.Record(context.Background(), Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: "product",
		EntityID:   &entityID,
		Before:     models.Snapshot{"price": 9.99},
		After:      models.Snapshot{"price": 14.99},
	})

	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, models.AuditActionUpdate, record.Action)
	assert.Equal(t, "product", record.EntityType)
	require.NotNil(t, record.DiffSummary)
	assert.Equal(t, "~ price: 9.99 → 14.99", *record.DiffSummary)
	// Full snapshots stored alongside the summary
	assert.Equal(t, models.Snapshot{"price": 9.99}, record.Before)
	assert.Equal(t, models.Snapshot{"price": 14.99}, record.After)
}

func TestRecord_NoSnapshotsNoSummary(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink, discardLogger())

	actorID := uuid.New()
	r.Record(context.Background(), Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionLogin,
		EntityType: models.AuditEntitySession,
	})

	require.Len(t, sink.records, 1)
	assert.Nil(t, sink.records[0].DiffSummary)
}

func TestRecord_SinkFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("store unavailable")}
	r := NewRecorder(sink, discardLogger())

	// Must not panic or propagate; the primary operation continues
	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{
			Action:     models.AuditActionDelete,
			EntityType: "product",
		})
	})
}
