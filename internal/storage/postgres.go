package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitlab/aso-pulse/internal/models"
)

// PostgresOrgRepo implements OrgRepo using PostgreSQL.
type PostgresOrgRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresOrgRepo creates a PostgreSQL-backed organization repository.
func NewPostgresOrgRepo(pool *pgxpool.Pool) *PostgresOrgRepo {
	return &PostgresOrgRepo{pool: pool}
}

// ListAll returns all organizations sorted by name.
func (r *PostgresOrgRepo) ListAll(ctx context.Context) ([]*models.Organization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, plan, created_at, updated_at
		FROM organizations ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Plan, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// GetByID returns an organization by ID, or nil when absent.
func (r *PostgresOrgRepo) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var o models.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, plan, created_at, updated_at
		FROM organizations WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.Plan, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &o, nil
}

// Upsert inserts or updates the organization.
func (r *PostgresOrgRepo) Upsert(ctx context.Context, o *models.Organization) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			plan = EXCLUDED.plan,
			updated_at = EXCLUDED.updated_at
	`, o.ID, o.Name, o.Plan, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert organization: %w", err)
	}
	return nil
}

// Delete removes the organization.
func (r *PostgresOrgRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// PostgresAppRepo implements AppRepo using PostgreSQL.
type PostgresAppRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresAppRepo creates a PostgreSQL-backed app repository.
func NewPostgresAppRepo(pool *pgxpool.Pool) *PostgresAppRepo {
	return &PostgresAppRepo{pool: pool}
}

// ListByOrg returns the organization's apps sorted by name.
func (r *PostgresAppRepo) ListByOrg(ctx context.Context, orgID string) ([]*models.App, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, store_id, name, platform, created_at, updated_at
		FROM apps WHERE org_id = $1 ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var out []*models.App
	for rows.Next() {
		var a models.App
		if err := rows.Scan(&a.ID, &a.OrgID, &a.StoreID, &a.Name, &a.Platform, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetByID returns an app by ID, or nil when absent.
func (r *PostgresAppRepo) GetByID(ctx context.Context, id string) (*models.App, error) {
	var a models.App
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, store_id, name, platform, created_at, updated_at
		FROM apps WHERE id = $1
	`, id).Scan(&a.ID, &a.OrgID, &a.StoreID, &a.Name, &a.Platform, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return &a, nil
}

// Upsert inserts or updates the app.
func (r *PostgresAppRepo) Upsert(ctx context.Context, a *models.App) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO apps (id, org_id, store_id, name, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			name = EXCLUDED.name,
			platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.OrgID, a.StoreID, a.Name, a.Platform, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert app: %w", err)
	}
	return nil
}

// Delete removes the app if present.
func (r *PostgresAppRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	return nil
}
