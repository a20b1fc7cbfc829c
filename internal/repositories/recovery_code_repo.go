package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
)

// RecoveryCodeRepository stores the bcrypt hashes of single-use 2FA recovery
// codes. Plaintext codes never reach this layer.
type RecoveryCodeRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewRecoveryCodeRepository(db *database.DB) *RecoveryCodeRepository {
	return &RecoveryCodeRepository{db: db, pool: db.Pool}
}

// ReplaceForUser atomically swaps the user's recovery code batch. Enrollment
// and re-enrollment both invalidate every prior code.
func (r *RecoveryCodeRepository) ReplaceForUser(ctx context.Context, userID uuid.UUID, codeHashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear recovery codes: %w", err)
		}

		for _, hash := range codeHashes {
			_, err := tx.Exec(ctx,
				`INSERT INTO recovery_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
				uuid.New(), userID, hash, time.Now(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert recovery code: %w", err)
			}
		}

		return nil
	})
}

// GetUnusedByUser returns the user's remaining unused codes
func (r *RecoveryCodeRepository) GetUnusedByUser(ctx context.Context, userID uuid.UUID) ([]*models.RecoveryCode, error) {
	query := `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM recovery_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery codes: %w", err)
	}
	defer rows.Close()

	codes := make([]*models.RecoveryCode, 0)
	for rows.Next() {
		var code models.RecoveryCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.UsedAt, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery code: %w", err)
		}
		codes = append(codes, &code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery code rows: %w", err)
	}

	return codes, nil
}

// Consume marks a code used. The used_at guard makes consumption single-use
// even under concurrent attempts; a second caller gets ErrNotFound.
func (r *RecoveryCodeRepository) Consume(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE recovery_codes
		SET used_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND used_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// CountRemaining returns how many unused codes the user has left
func (r *RecoveryCodeRepository) CountRemaining(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = $1 AND used_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}

	return count, nil
}

// DeleteForUser removes every code for a user, used or not
func (r *RecoveryCodeRepository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}
