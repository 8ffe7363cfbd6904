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

// SessionRepository persists the single pending session per (tenant, user).
// Writes always replace the previous row, so concurrent transitions end in
// last-write-wins with no partial application.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Set stores the user's current session state, replacing any previous one.
func (r *SessionRepository) Set(ctx context.Context, tenantID uuid.UUID, userID int64, state model.SessionState) error {
	kind, payload, err := model.EncodeSession(state)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (tenant_id, user_id, kind, payload, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET kind = EXCLUDED.kind, payload = EXCLUDED.payload, updated_at = NOW()
	`, tenantID, userID, kind, payload)
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Get returns the active session state, or (nil, nil) when the user has
// none. Rows with an unknown kind are treated as absent so stale data
// cannot be misdispatched.
func (r *SessionRepository) Get(ctx context.Context, tenantID uuid.UUID, userID int64) (model.SessionState, error) {
	var kind model.SessionKind
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT kind, payload FROM sessions
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&kind, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	state, err := model.DecodeSession(kind, payload)
	if err != nil {
		return nil, nil
	}
	return state, nil
}

// Clear removes the user's session. Clearing an absent session is a no-op.
func (r *SessionRepository) Clear(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
