// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-affiliate-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrActionNotFound     = errors.New("action not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAlreadyProcessed   = errors.New("withdrawal already processed")
	ErrPhoneTaken         = errors.New("phone number already registered")
)

const tenantColumns = `id, token, bot_username, webhook_secret, owner_user_id,
	locked, manual_approval, scan_limit_per_day, admin_chat_id, join_targets,
	affiliate_amount, min_withdraw_amount,
	start_text, start_media_type, start_media_file_id,
	loading_text,
	contact_text, contact_media_type, contact_media_file_id,
	approval_text, approval_media_type, approval_media_file_id,
	rejection_text, rejection_media_type, rejection_media_file_id,
	withdraw_ask_text,
	withdrawal_approve_text, withdrawal_approve_media_type, withdrawal_approve_media_file_id,
	withdrawal_reject_text, withdrawal_reject_media_type, withdrawal_reject_media_file_id,
	scan_limit_text, scan_limit_media_type, scan_limit_media_file_id,
	created_at`

// TenantRepository handles tenant configuration persistence.
type TenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a new TenantRepository instance.
func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(
		&t.ID, &t.Token, &t.BotUsername, &t.WebhookSecret, &t.OwnerUserID,
		&t.Locked, &t.ManualApproval, &t.ScanLimit, &t.AdminChatID, &t.JoinTargets,
		&t.AffiliateAmount, &t.MinWithdraw,
		&t.StartText, &t.StartMedia.Type, &t.StartMedia.FileID,
		&t.LoadingText,
		&t.ContactText, &t.ContactMedia.Type, &t.ContactMedia.FileID,
		&t.ApprovalText, &t.ApprovalMedia.Type, &t.ApprovalMedia.FileID,
		&t.RejectionText, &t.RejectionMedia.Type, &t.RejectionMedia.FileID,
		&t.WithdrawAskText,
		&t.ApproveWDText, &t.ApproveWDMedia.Type, &t.ApproveWDMedia.FileID,
		&t.RejectWDText, &t.RejectWDMedia.Type, &t.RejectWDMedia.FileID,
		&t.QuotaLimitText, &t.QuotaLimitMedia.Type, &t.QuotaLimitMedia.FileID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

// Create registers a new tenant.
func (r *TenantRepository) Create(ctx context.Context, token, botUsername, webhookSecret string, ownerUserID int64) (*model.Tenant, error) {
	query := `
		INSERT INTO tenants (id, token, bot_username, webhook_secret, owner_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + tenantColumns

	return scanTenant(r.pool.QueryRow(ctx, query, uuid.New(), token, botUsername, webhookSecret, ownerUserID))
}

// GetByID retrieves a tenant by its id.
// Returns ErrTenantNotFound if no such tenant exists.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.pool.QueryRow(ctx, query, id))
}

// GetByWebhookSecret resolves the tenant an inbound webhook delivery
// belongs to. The secret arrives out-of-band in a header, never in the
// payload.
func (r *TenantRepository) GetByWebhookSecret(ctx context.Context, secret string) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE webhook_secret = $1`
	return scanTenant(r.pool.QueryRow(ctx, query, secret))
}

// messageSlots maps a slot name to its text/media column triple. Column
// names never come from user input.
var messageSlots = map[string][3]string{
	"start":              {"start_text", "start_media_type", "start_media_file_id"},
	"contact":            {"contact_text", "contact_media_type", "contact_media_file_id"},
	"approval":           {"approval_text", "approval_media_type", "approval_media_file_id"},
	"rejection":          {"rejection_text", "rejection_media_type", "rejection_media_file_id"},
	"withdrawal_approve": {"withdrawal_approve_text", "withdrawal_approve_media_type", "withdrawal_approve_media_file_id"},
	"withdrawal_reject":  {"withdrawal_reject_text", "withdrawal_reject_media_type", "withdrawal_reject_media_file_id"},
	"scan_limit":         {"scan_limit_text", "scan_limit_media_type", "scan_limit_media_file_id"},
}

// SetMessageSlot stores a templated message slot with optional media.
func (r *TenantRepository) SetMessageSlot(ctx context.Context, id uuid.UUID, slot, text string, media model.MediaRef) error {
	cols, ok := messageSlots[slot]
	if !ok {
		return fmt.Errorf("unknown message slot %q", slot)
	}
	query := fmt.Sprintf(
		`UPDATE tenants SET %s = $2, %s = $3, %s = $4 WHERE id = $1`,
		cols[0], cols[1], cols[2],
	)
	tag, err := r.pool.Exec(ctx, query, id, text, media.Type, media.FileID)
	if err != nil {
		return fmt.Errorf("failed to set message slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// SetLoadingText stores the transient text shown while a deferred action
// runs.
func (r *TenantRepository) SetLoadingText(ctx context.Context, id uuid.UUID, text string) error {
	return r.exec(ctx, `UPDATE tenants SET loading_text = $2 WHERE id = $1`, id, text)
}

// SetWithdrawAskText stores the prompt shown when a user presses the
// withdrawal button.
func (r *TenantRepository) SetWithdrawAskText(ctx context.Context, id uuid.UUID, text string) error {
	return r.exec(ctx, `UPDATE tenants SET withdraw_ask_text = $2 WHERE id = $1`, id, text)
}

// SetLocked toggles the tenant-wide lock.
func (r *TenantRepository) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	return r.exec(ctx, `UPDATE tenants SET locked = $2 WHERE id = $1`, id, locked)
}

// SetManualApproval toggles the premium manual-approval gate.
func (r *TenantRepository) SetManualApproval(ctx context.Context, id uuid.UUID, on bool) error {
	return r.exec(ctx, `UPDATE tenants SET manual_approval = $2 WHERE id = $1`, id, on)
}

// SetScanLimit sets the tenant-wide daily quota. Nil or non-positive
// means unlimited.
func (r *TenantRepository) SetScanLimit(ctx context.Context, id uuid.UUID, limit *int) error {
	return r.exec(ctx, `UPDATE tenants SET scan_limit_per_day = $2 WHERE id = $1`, id, limit)
}

// SetAdminChat points operator notifications at a group chat. Zero routes
// them to the owner's DM.
func (r *TenantRepository) SetAdminChat(ctx context.Context, id uuid.UUID, chatID int64) error {
	return r.exec(ctx, `UPDATE tenants SET admin_chat_id = $2 WHERE id = $1`, id, chatID)
}

// SetJoinTargets replaces the join-gate target list.
func (r *TenantRepository) SetJoinTargets(ctx context.Context, id uuid.UUID, targets []string) error {
	if targets == nil {
		targets = []string{}
	}
	return r.exec(ctx, `UPDATE tenants SET join_targets = $2 WHERE id = $1`, id, targets)
}

// SetAffiliateAmount sets the per-referral credit. Nil restores the
// application default.
func (r *TenantRepository) SetAffiliateAmount(ctx context.Context, id uuid.UUID, amount *decimal.Decimal) error {
	return r.exec(ctx, `UPDATE tenants SET affiliate_amount = $2 WHERE id = $1`, id, amount)
}

// SetMinWithdraw sets the minimum withdrawal amount. Nil restores the
// application default.
func (r *TenantRepository) SetMinWithdraw(ctx context.Context, id uuid.UUID, amount *decimal.Decimal) error {
	return r.exec(ctx, `UPDATE tenants SET min_withdraw_amount = $2 WHERE id = $1`, id, amount)
}

// SetBotUsername updates the public handle used to build referral links.
func (r *TenantRepository) SetBotUsername(ctx context.Context, id uuid.UUID, username string) error {
	return r.exec(ctx, `UPDATE tenants SET bot_username = $2 WHERE id = $1`, id, username)
}

func (r *TenantRepository) exec(ctx context.Context, query string, id uuid.UUID, arg any) error {
	tag, err := r.pool.Exec(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}
