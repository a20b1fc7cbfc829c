package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
)

// AuditLogRepository persists the append-only audit trail. Records are never
// updated or deleted individually; only retention cleanup removes them.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditColumns = `id, actor_id, action, entity_type, entity_id,
       before_state, after_state, diff_summary, ip_address, user_agent, created_at`

// scanAuditRow populates an AuditRecord from a database row
func scanAuditRow(scanner rowScanner) (*models.AuditRecord, error) {
	var record models.AuditRecord

	err := scanner.Scan(
		&record.ID, &record.ActorID, &record.Action, &record.EntityType, &record.EntityID,
		&record.Before, &record.After, &record.DiffSummary,
		&record.IPAddress, &record.UserAgent, &record.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &record, nil
}

// scanAuditRows iterates through rows and scans each into AuditRecord models
func scanAuditRows(rows pgx.Rows) ([]*models.AuditRecord, error) {
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)

	for rows.Next() {
		record, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return records, nil
}

// Create appends a new audit record
func (r *AuditLogRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_logs (
			actor_id, action, entity_type, entity_id,
			before_state, after_state, diff_summary, ip_address, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		record.ActorID, record.Action, record.EntityType, record.EntityID,
		record.Before, record.After, record.DiffSummary, record.IPAddress, record.UserAgent,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", database.MapPostgresError(err))
	}

	return nil
}

// List retrieves recent audit records, newest first
func (r *AuditLogRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	return scanAuditRows(rows)
}

// ListByEntity retrieves the history of a single entity, newest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity audit records: %w", err)
	}

	return scanAuditRows(rows)
}

// ListByActor retrieves records produced by a specific actor, newest first
func (r *AuditLogRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query actor audit records: %w", err)
	}

	return scanAuditRows(rows)
}

// Count returns the total number of audit records
func (r *AuditLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	return count, nil
}

// Cleanup removes audit records older than the specified number of days
func (r *AuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < CURRENT_TIMESTAMP - INTERVAL '1 day' * $1
	`

	result, err := r.pool.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit records: %w", err)
	}

	return result.RowsAffected(), nil
}
