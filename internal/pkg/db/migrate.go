package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migrations are applied in order on startup. Statements are idempotent
// so restarting against an existing database is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		bot_username TEXT NOT NULL DEFAULT '',
		webhook_secret TEXT NOT NULL,
		owner_user_id BIGINT NOT NULL,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		manual_approval BOOLEAN NOT NULL DEFAULT FALSE,
		scan_limit_per_day INT,
		admin_chat_id BIGINT NOT NULL DEFAULT 0,
		join_targets TEXT[] NOT NULL DEFAULT '{}',
		affiliate_amount NUMERIC(12,2),
		min_withdraw_amount NUMERIC(12,2),
		start_text TEXT,
		start_media_type TEXT,
		start_media_file_id TEXT,
		loading_text TEXT,
		contact_text TEXT,
		contact_media_type TEXT,
		contact_media_file_id TEXT,
		approval_text TEXT,
		approval_media_type TEXT,
		approval_media_file_id TEXT,
		rejection_text TEXT,
		rejection_media_type TEXT,
		rejection_media_file_id TEXT,
		withdraw_ask_text TEXT,
		withdrawal_approve_text TEXT,
		withdrawal_approve_media_type TEXT,
		withdrawal_approve_media_file_id TEXT,
		withdrawal_reject_text TEXT,
		withdrawal_reject_media_type TEXT,
		withdrawal_reject_media_file_id TEXT,
		scan_limit_text TEXT,
		scan_limit_media_type TEXT,
		scan_limit_media_file_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_webhook_secret ON tenants (webhook_secret)`,

	`CREATE TABLE IF NOT EXISTS tenant_admins (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		expires_at TIMESTAMPTZ,
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		username TEXT,
		first_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		member_id TEXT NOT NULL DEFAULT '',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		shared_count BIGINT NOT NULL DEFAULT 0,
		upline_user_id BIGINT,
		credited_upline BOOLEAN NOT NULL DEFAULT FALSE,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,

	// One verified phone serves one account per tenant.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_phone
		ON users (tenant_id, phone) WHERE phone IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS actions (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		body TEXT NOT NULL DEFAULT '',
		media_file_id TEXT,
		delay_seconds INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		request_text TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		approved_amount NUMERIC(12,2),
		requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		processed_by BIGINT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_withdrawals_tenant_status ON withdrawals (tenant_id, status)`,

	`CREATE TABLE IF NOT EXISTS feature_media (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		media_type TEXT NOT NULL,
		file_id TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, provider)
	)`,

	`CREATE TABLE IF NOT EXISTS feature_games (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (tenant_id, provider, name)
	)`,

	`CREATE TABLE IF NOT EXISTS daily_usage (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		day DATE NOT NULL,
		count INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS quota_overrides (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		limit_per_day INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS cooldowns (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		feature TEXT NOT NULL,
		last_used_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id, feature)
	)`,
}

// Migrate applies the schema migrations.
func Migrate(ctx context.Context, pool *Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("Database migrations applied")
	return nil
}
