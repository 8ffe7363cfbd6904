package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-affiliate-bot/internal/model"
)

// AdminRepository stores per-tenant admin grants. The tenant owner is
// always an admin and never needs a row here.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository instance.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// IsAdmin reports whether the user holds a non-expired admin grant.
func (r *AdminRepository) IsAdmin(ctx context.Context, tenantID uuid.UUID, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_admins
			WHERE tenant_id = $1 AND user_id = $2
			  AND (expires_at IS NULL OR expires_at > NOW())
		)
	`, tenantID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check admin grant: %w", err)
	}
	return ok, nil
}

// Add grants admin rights, optionally expiring. Re-adding refreshes the
// expiry.
func (r *AdminRepository) Add(ctx context.Context, tenantID uuid.UUID, userID int64, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_admins (tenant_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, tenantID, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	return nil
}

// Remove revokes an admin grant. Removing an absent grant is a no-op.
func (r *AdminRepository) Remove(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM tenant_admins WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

// List returns the tenant's admin grants.
func (r *AdminRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*model.TenantAdmin, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, user_id, expires_at, added_at
		FROM tenant_admins WHERE tenant_id = $1 ORDER BY added_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var out []*model.TenantAdmin
	for rows.Next() {
		var a model.TenantAdmin
		if err := rows.Scan(&a.TenantID, &a.UserID, &a.ExpiresAt, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
