package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-affiliate-bot/internal/model"
)

const userColumns = `tenant_id, user_id, username, first_name, phone, member_id,
	is_verified, is_premium, balance, shared_count, upline_user_id,
	credited_upline, joined_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.TenantID, &u.UserID, &u.Username, &u.FirstName, &u.Phone, &u.MemberID,
		&u.Verified, &u.Premium, &u.Balance, &u.SharedCount, &u.UplineUserID,
		&u.CreditedUpline, &u.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// Upsert creates the user on first contact and refreshes the profile
// snapshot afterwards. When the insert actually lands (rowcount 1) and a
// valid upline was supplied, the upline is credited in the same
// transaction, so duplicate concurrent first events cannot double-credit.
// Returns the resulting row and whether it was newly created.
func (r *UserRepository) Upsert(ctx context.Context, tenantID uuid.UUID, userID int64, username *string, firstName, memberID string, uplineID *int64, creditAmount decimal.Decimal) (*model.User, bool, error) {
	if uplineID != nil && *uplineID == userID {
		uplineID = nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO users (tenant_id, user_id, username, first_name, member_id, upline_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`, tenantID, userID, username, firstName, memberID, uplineID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}
	isNew := tag.RowsAffected() == 1

	if !isNew {
		if _, err := tx.Exec(ctx, `
			UPDATE users SET username = $3, first_name = $4
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, userID, username, firstName); err != nil {
			return nil, false, fmt.Errorf("failed to refresh user profile: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET member_id = $3
			WHERE tenant_id = $1 AND user_id = $2 AND member_id = ''
		`, tenantID, userID, memberID); err != nil {
			return nil, false, fmt.Errorf("failed to backfill member id: %w", err)
		}
	}

	if isNew && uplineID != nil {
		upd, err := tx.Exec(ctx, `
			UPDATE users
			SET balance = balance + $3, shared_count = shared_count + 1
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, *uplineID, creditAmount)
		if err != nil {
			return nil, false, fmt.Errorf("failed to credit upline: %w", err)
		}
		// Only mark credited when the upline row really exists.
		if upd.RowsAffected() == 1 {
			if _, err := tx.Exec(ctx, `
				UPDATE users SET credited_upline = TRUE
				WHERE tenant_id = $1 AND user_id = $2
			`, tenantID, userID); err != nil {
				return nil, false, fmt.Errorf("failed to mark upline credited: %w", err)
			}
		}
	}

	user, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID))
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit user upsert: %w", err)
	}
	return user, isNew, nil
}

// GetByID retrieves a user within one tenant.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, tenantID uuid.UUID, userID int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID))
}

// FindIDByUsername resolves a platform handle (without @) to a user id.
func (r *UserRepository) FindIDByUsername(ctx context.Context, tenantID uuid.UUID, username string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT user_id FROM users
		WHERE tenant_id = $1 AND LOWER(username) = LOWER($2)
	`, tenantID, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to find user by username: %w", err)
	}
	return id, nil
}

// SetPhone records the verified phone number. The partial unique index on
// (tenant_id, phone) makes a reused number fail with ErrPhoneTaken; the
// existing owner keeps the number until an operator clears it.
func (r *UserRepository) SetPhone(ctx context.Context, tenantID uuid.UUID, userID int64, phone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET phone = $3, is_verified = TRUE
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID, phone)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPhoneTaken
		}
		return fmt.Errorf("failed to set phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearPhone releases a phone number so it can be re-verified by another
// account. Operator action only.
func (r *UserRepository) ClearPhone(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET phone = NULL, is_verified = FALSE
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to clear phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPremium flips the premium access flag.
func (r *UserRepository) SetPremium(ctx context.Context, tenantID uuid.UUID, userID int64, on bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET is_premium = $3
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID, on)
	if err != nil {
		return fmt.Errorf("failed to set premium: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListIDs returns user ids of a tenant for broadcast fan-out.
func (r *UserRepository) ListIDs(ctx context.Context, tenantID uuid.UUID) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM users WHERE tenant_id = $1 ORDER BY joined_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats summarises a tenant's member base for the operator console.
type Stats struct {
	Total    int64
	Verified int64
	Premium  int64
}

// CountStats returns member counts for one tenant.
func (r *UserRepository) CountStats(ctx context.Context, tenantID uuid.UUID) (*Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_verified),
		       COUNT(*) FILTER (WHERE is_premium)
		FROM users WHERE tenant_id = $1
	`, tenantID).Scan(&s.Total, &s.Verified, &s.Premium)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	return &s, nil
}
