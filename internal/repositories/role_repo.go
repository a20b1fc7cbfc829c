package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
)

// RoleRepository handles role data access. It also serves permission lookups
// for access checks via GetAssignedPermissions.
type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{pool: db.Pool}
}

// scanRoleRow populates a Role model from a database row
func scanRoleRow(scanner rowScanner) (*models.Role, error) {
	var role models.Role

	err := scanner.Scan(
		&role.ID, &role.Name, pq.Array(&role.Permissions),
		&role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &role, nil
}

// scanRoleRows iterates through rows and scans each into Role models
func scanRoleRows(rows pgx.Rows) ([]*models.Role, error) {
	defer rows.Close()

	roles := make([]*models.Role, 0)

	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}

func (r *RoleRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	role.ID = uuid.New()

	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	query := `
		INSERT INTO roles (id, name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, permissions, created_at, updated_at
	`

	return scanRoleRow(r.pool.QueryRow(ctx, query,
		role.ID, role.Name, pq.Array(role.Permissions), role.CreatedAt, role.UpdatedAt,
	))
}

func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := `SELECT id, name, permissions, created_at, updated_at FROM roles WHERE id = $1`

	return scanRoleRow(r.pool.QueryRow(ctx, query, id))
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT id, name, permissions, created_at, updated_at FROM roles WHERE name = $1`

	return scanRoleRow(r.pool.QueryRow(ctx, query, name))
}

func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT id, name, permissions, created_at, updated_at FROM roles ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}

	return scanRoleRows(rows)
}

func (r *RoleRepository) Update(ctx context.Context, id uuid.UUID, role *models.Role) (*models.Role, error) {
	query := `
		UPDATE roles SET name = $1, permissions = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
		RETURNING id, name, permissions, created_at, updated_at
	`

	return scanRoleRow(r.pool.QueryRow(ctx, query, role.Name, pq.Array(role.Permissions), id))
}

func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetAssignedPermissions returns the permission list of the role explicitly
// assigned to a principal. ErrNotFound means the principal has no assignment,
// not that the principal is unknown.
func (r *RoleRepository) GetAssignedPermissions(ctx context.Context, principalID string) ([]string, error) {
	id, err := uuid.Parse(principalID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	query := `
		SELECT r.permissions
		FROM roles r
		JOIN users u ON u.role_id = r.id
		WHERE u.id = $1
	`

	var permissions []string
	err = r.pool.QueryRow(ctx, query, id).Scan(pq.Array(&permissions))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return permissions, nil
}
