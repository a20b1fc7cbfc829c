package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
)

// SettingsRepository stores the singleton security settings row
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{pool: db.Pool}
}

// Get returns the current security settings. A missing row yields the
// defaults: allow-list disabled, no rules.
func (r *SettingsRepository) Get(ctx context.Context) (*models.SecuritySettings, error) {
	query := `
		SELECT allow_list_enabled, allow_list_rules, updated_at
		FROM security_settings
		WHERE id = 1
	`

	var settings models.SecuritySettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&settings.AllowListEnabled, pq.Array(&settings.AllowListRules), &settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			return &models.SecuritySettings{AllowListRules: []string{}}, nil
		}
		return nil, fmt.Errorf("failed to get security settings: %w", err)
	}

	return &settings, nil
}

// Update upserts the singleton row and returns the stored state
func (r *SettingsRepository) Update(ctx context.Context, settings *models.SecuritySettings) (*models.SecuritySettings, error) {
	query := `
		INSERT INTO security_settings (id, allow_list_enabled, allow_list_rules, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET allow_list_enabled = EXCLUDED.allow_list_enabled,
		    allow_list_rules = EXCLUDED.allow_list_rules,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING allow_list_enabled, allow_list_rules, updated_at
	`

	var stored models.SecuritySettings
	err := r.pool.QueryRow(ctx, query,
		settings.AllowListEnabled, pq.Array(settings.AllowListRules),
	).Scan(&stored.AllowListEnabled, pq.Array(&stored.AllowListRules), &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update security settings: %w", database.MapPostgresError(err))
	}

	return &stored, nil
}
