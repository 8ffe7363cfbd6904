package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-affiliate-bot/internal/model"
)

// QuotaRepository implements the per-user daily counters and per-feature
// cooldown marks. Both check-and-mutate paths are single atomic
// statements: correctness never depends on in-process locks.
type QuotaRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewQuotaRepository creates a new QuotaRepository instance. Days roll
// over at midnight in loc.
func NewQuotaRepository(pool *pgxpool.Pool, loc *time.Location) *QuotaRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaRepository{pool: pool, loc: loc}
}

func (r *QuotaRepository) today() time.Time {
	now := time.Now().In(r.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
}

func (r *QuotaRepository) nextReset() time.Time {
	return r.today().AddDate(0, 0, 1)
}

// EffectiveLimit resolves the daily limit for one user: a per-user
// override beats the tenant default; nil or non-positive means unlimited.
func (r *QuotaRepository) EffectiveLimit(ctx context.Context, tenant *model.Tenant, userID int64) (*int, error) {
	var override int
	err := r.pool.QueryRow(ctx, `
		SELECT limit_per_day FROM quota_overrides
		WHERE tenant_id = $1 AND user_id = $2
	`, tenant.ID, userID).Scan(&override)
	switch {
	case err == nil:
		if override <= 0 {
			return nil, nil
		}
		return &override, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to tenant default
	default:
		return nil, fmt.Errorf("failed to read quota override: %w", err)
	}

	if tenant.ScanLimit == nil || *tenant.ScanLimit <= 0 {
		return nil, nil
	}
	limit := *tenant.ScanLimit
	return &limit, nil
}

// TryConsumeDaily admits one use against today's counter. The increment
// and the limit check are one conditional upsert, so concurrent attempts
// from the same user can never push the count past the limit. Returns
// whether the attempt was admitted plus the used count after the attempt.
func (r *QuotaRepository) TryConsumeDaily(ctx context.Context, tenant *model.Tenant, userID int64) (bool, model.QuotaStats, error) {
	limit, err := r.EffectiveLimit(ctx, tenant, userID)
	if err != nil {
		return false, model.QuotaStats{}, err
	}

	stats := model.QuotaStats{Limit: limit, ResetAt: r.nextReset()}

	if limit == nil {
		return true, stats, nil
	}

	var used int
	err = r.pool.QueryRow(ctx, `
		INSERT INTO daily_usage (tenant_id, user_id, day, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, user_id, day) DO UPDATE
		SET count = daily_usage.count + 1, updated_at = NOW()
		WHERE daily_usage.count < $4
		RETURNING count
	`, tenant.ID, userID, r.today(), *limit).Scan(&used)

	switch {
	case err == nil:
		stats.Used = used
		rem := *limit - used
		stats.Remaining = &rem
		return used <= *limit, stats, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Conditional update declined: already at the limit.
		cur, err := r.usedToday(ctx, tenant.ID, userID)
		if err != nil {
			return false, stats, err
		}
		stats.Used = cur
		rem := 0
		stats.Remaining = &rem
		return false, stats, nil
	default:
		return false, stats, fmt.Errorf("failed to consume daily quota: %w", err)
	}
}

// GetStats reads today's usage without consuming anything.
func (r *QuotaRepository) GetStats(ctx context.Context, tenant *model.Tenant, userID int64) (model.QuotaStats, error) {
	limit, err := r.EffectiveLimit(ctx, tenant, userID)
	if err != nil {
		return model.QuotaStats{}, err
	}
	used, err := r.usedToday(ctx, tenant.ID, userID)
	if err != nil {
		return model.QuotaStats{}, err
	}

	stats := model.QuotaStats{Used: used, Limit: limit, ResetAt: r.nextReset()}
	if limit != nil {
		rem := *limit - used
		if rem < 0 {
			rem = 0
		}
		stats.Remaining = &rem
	}
	return stats, nil
}

func (r *QuotaRepository) usedToday(ctx context.Context, tenantID uuid.UUID, userID int64) (int, error) {
	var used int
	err := r.pool.QueryRow(ctx, `
		SELECT count FROM daily_usage
		WHERE tenant_id = $1 AND user_id = $2 AND day = $3
	`, tenantID, userID, r.today()).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read daily usage: %w", err)
	}
	return used, nil
}

// SetOverride gives one user their own daily limit.
func (r *QuotaRepository) SetOverride(ctx context.Context, tenantID uuid.UUID, userID int64, limit int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quota_overrides (tenant_id, user_id, limit_per_day, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET limit_per_day = EXCLUDED.limit_per_day, updated_at = NOW()
	`, tenantID, userID, limit)
	if err != nil {
		return fmt.Errorf("failed to set quota override: %w", err)
	}
	return nil
}

// ClearOverride restores the tenant default for one user.
func (r *QuotaRepository) ClearOverride(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM quota_overrides WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to clear quota override: %w", err)
	}
	return nil
}

// ResetToday zeroes today's counter for one user.
func (r *QuotaRepository) ResetToday(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM daily_usage WHERE tenant_id = $1 AND user_id = $2 AND day = $3
	`, tenantID, userID, r.today())
	if err != nil {
		return fmt.Errorf("failed to reset daily usage: %w", err)
	}
	return nil
}

// ResetTodayAll zeroes today's counters for every user of a tenant.
func (r *QuotaRepository) ResetTodayAll(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM daily_usage WHERE tenant_id = $1 AND day = $2`, tenantID, r.today())
	if err != nil {
		return fmt.Errorf("failed to reset daily usage: %w", err)
	}
	return nil
}

// CheckCooldown enforces minimum spacing between uses of one feature.
// A single conditional upsert both checks the window and records the new
// use, so two near-simultaneous requests cannot both be admitted.
// Returns 0 when admitted, otherwise the remaining seconds to wait.
func (r *QuotaRepository) CheckCooldown(ctx context.Context, tenantID uuid.UUID, userID int64, feature string, window time.Duration) (int, error) {
	var last time.Time
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cooldowns (tenant_id, user_id, feature, last_used_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, user_id, feature) DO UPDATE
		SET last_used_at = NOW()
		WHERE cooldowns.last_used_at <= NOW() - $4::interval
		RETURNING last_used_at
	`, tenantID, userID, feature, window).Scan(&last)

	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Still cooling down: report remaining time without mutating.
		err := r.pool.QueryRow(ctx, `
			SELECT last_used_at FROM cooldowns
			WHERE tenant_id = $1 AND user_id = $2 AND feature = $3
		`, tenantID, userID, feature).Scan(&last)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, nil
			}
			return 0, fmt.Errorf("failed to read cooldown: %w", err)
		}
		remaining := int(time.Until(last.Add(window)).Seconds()) + 1
		if remaining < 1 {
			remaining = 1
		}
		return remaining, nil
	default:
		return 0, fmt.Errorf("failed to check cooldown: %w", err)
	}
}
