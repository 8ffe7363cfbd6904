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

// FeatureRepository stores the result-feature providers: one media card
// plus a game-name list per provider, rendered when a callback key
// resolves to a provider instead of an explicit action.
type FeatureRepository struct {
	pool *pgxpool.Pool
}

// NewFeatureRepository creates a new FeatureRepository instance.
func NewFeatureRepository(pool *pgxpool.Pool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

// SetMedia stores or replaces the provider's media card.
func (r *FeatureRepository) SetMedia(ctx context.Context, m *model.FeatureMedia) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feature_media (tenant_id, provider, media_type, file_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, provider) DO UPDATE
		SET media_type = EXCLUDED.media_type, file_id = EXCLUDED.file_id, updated_at = NOW()
	`, m.TenantID, m.Provider, m.MediaType, m.FileID)
	if err != nil {
		return fmt.Errorf("failed to set feature media: %w", err)
	}
	return nil
}

// GetMedia returns the provider's media card, or (nil, nil) when absent.
func (r *FeatureRepository) GetMedia(ctx context.Context, tenantID uuid.UUID, provider string) (*model.FeatureMedia, error) {
	var m model.FeatureMedia
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, provider, media_type, file_id, updated_at
		FROM feature_media WHERE tenant_id = $1 AND provider = $2
	`, tenantID, provider).Scan(&m.TenantID, &m.Provider, &m.MediaType, &m.FileID, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature media: %w", err)
	}
	return &m, nil
}

// AddGames appends game names to a provider's list, ignoring duplicates.
func (r *FeatureRepository) AddGames(ctx context.Context, tenantID uuid.UUID, provider string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO feature_games (tenant_id, provider, name)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, tenantID, provider, name); err != nil {
			return fmt.Errorf("failed to add feature game: %w", err)
		}
	}
	return nil
}

// Games returns a provider's game names in stored order.
func (r *FeatureRepository) Games(ctx context.Context, tenantID uuid.UUID, provider string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name FROM feature_games
		WHERE tenant_id = $1 AND provider = $2
		ORDER BY name
	`, tenantID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature games: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan feature game: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ClearGames drops a provider's game list.
func (r *FeatureRepository) ClearGames(ctx context.Context, tenantID uuid.UUID, provider string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM feature_games WHERE tenant_id = $1 AND provider = $2`, tenantID, provider)
	if err != nil {
		return fmt.Errorf("failed to clear feature games: %w", err)
	}
	return nil
}

// HasProvider reports whether the key names a configured provider, either
// by media card or by game list.
func (r *FeatureRepository) HasProvider(ctx context.Context, tenantID uuid.UUID, provider string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM feature_media WHERE tenant_id = $1 AND provider = $2
			UNION ALL
			SELECT 1 FROM feature_games WHERE tenant_id = $1 AND provider = $2
			LIMIT 1
		)
	`, tenantID, provider).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check feature provider: %w", err)
	}
	return exists, nil
}
