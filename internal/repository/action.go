package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-affiliate-bot/internal/model"
)

// ActionRepository stores tenant-scoped content records addressed by
// callback or command keys.
type ActionRepository struct {
	pool *pgxpool.Pool
}

// NewActionRepository creates a new ActionRepository instance.
func NewActionRepository(pool *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{pool: pool}
}

const actionColumns = `tenant_id, key, type, body, media_file_id, delay_seconds, updated_at`

func scanAction(row pgx.Row) (*model.Action, error) {
	var a model.Action
	err := row.Scan(&a.TenantID, &a.Key, &a.Type, &a.Body, &a.MediaFileID, &a.DelaySeconds, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}
	return &a, nil
}

// Get retrieves one action by key. Lookups happen at dispatch time and
// again at deferred fire time, so a redefinition between the two simply
// changes what renders.
func (r *ActionRepository) Get(ctx context.Context, tenantID uuid.UUID, key string) (*model.Action, error) {
	return scanAction(r.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE tenant_id = $1 AND key = $2`,
		tenantID, key))
}

// Upsert redefines an action. The new content wins wholesale.
func (r *ActionRepository) Upsert(ctx context.Context, a *model.Action) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO actions (tenant_id, key, type, body, media_file_id, delay_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id, key) DO UPDATE
		SET type = EXCLUDED.type,
		    body = EXCLUDED.body,
		    media_file_id = EXCLUDED.media_file_id,
		    delay_seconds = EXCLUDED.delay_seconds,
		    updated_at = NOW()
	`, a.TenantID, a.Key, a.Type, a.Body, a.MediaFileID, a.DelaySeconds)
	if err != nil {
		return fmt.Errorf("failed to upsert action: %w", err)
	}
	return nil
}

// Delete removes an action.
// Returns ErrActionNotFound when no such key exists.
func (r *ActionRepository) Delete(ctx context.Context, tenantID uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM actions WHERE tenant_id = $1 AND key = $2`, tenantID, key)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActionNotFound
	}
	return nil
}

// ListKeys returns all defined keys for the operator console.
func (r *ActionRepository) ListKeys(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key FROM actions WHERE tenant_id = $1 ORDER BY key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan action key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
