// Package model defines the data models for the multi-tenant bot runtime.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant is one bot identity: platform credential, owner, feature flags,
// and templated message slots. Every other row in the store is keyed by
// its ID and cascade-deleted with it.
type Tenant struct {
	ID            uuid.UUID `db:"id"`
	Token         string    `db:"token"`
	BotUsername   string    `db:"bot_username"`
	WebhookSecret string    `db:"webhook_secret"`
	OwnerUserID   int64     `db:"owner_user_id"`

	Locked         bool  `db:"locked"`
	ManualApproval bool  `db:"manual_approval"`
	ScanLimit      *int  `db:"scan_limit_per_day"` // nil or <=0 means unlimited
	AdminChatID    int64 `db:"admin_chat_id"`      // 0 means owner DM

	// Channels/groups the user must have joined before using the bot.
	JoinTargets []string `db:"join_targets"`

	// Monetary knobs. Nil falls back to the built-in default.
	AffiliateAmount *decimal.Decimal `db:"affiliate_amount"`
	MinWithdraw     *decimal.Decimal `db:"min_withdraw_amount"`

	StartText       *string `db:"start_text"`
	StartMedia      MediaRef
	LoadingText     *string `db:"loading_text"`
	ContactText     *string `db:"contact_text"`
	ContactMedia    MediaRef
	ApprovalText    *string `db:"approval_text"`
	ApprovalMedia   MediaRef
	RejectionText   *string `db:"rejection_text"`
	RejectionMedia  MediaRef
	WithdrawAskText *string `db:"withdraw_ask_text"`
	ApproveWDText   *string `db:"withdrawal_approve_text"`
	ApproveWDMedia  MediaRef
	RejectWDText    *string `db:"withdrawal_reject_text"`
	RejectWDMedia   MediaRef
	QuotaLimitText  *string `db:"scan_limit_text"`
	QuotaLimitMedia MediaRef

	CreatedAt time.Time `db:"created_at"`
}

// MediaRef is an optional platform media attachment for a message slot.
type MediaRef struct {
	Type   *string `db:"media_type"` // photo, video, animation, document
	FileID *string `db:"media_file_id"`
}

// Set reports whether the reference points at actual media.
func (m MediaRef) Set() bool {
	return m.Type != nil && *m.Type != "" && m.FileID != nil && *m.FileID != ""
}

// User is a member of one tenant, identified by (tenant_id, user_id).
// Balance and flags are mutated only through the ledger service.
type User struct {
	TenantID       uuid.UUID       `db:"tenant_id"`
	UserID         int64           `db:"user_id"`
	Username       *string         `db:"username"`
	FirstName      string          `db:"first_name"`
	Phone          *string         `db:"phone"`
	MemberID       string          `db:"member_id"`
	Verified       bool            `db:"is_verified"`
	Premium        bool            `db:"is_premium"`
	Balance        decimal.Decimal `db:"balance"`
	SharedCount    int64           `db:"shared_count"`
	UplineUserID   *int64          `db:"upline_user_id"`
	CreditedUpline bool            `db:"credited_upline"`
	JoinedAt       time.Time       `db:"joined_at"`
}

// ActionType enumerates the content types an action can carry.
type ActionType string

const (
	ActionText      ActionType = "text"
	ActionPhoto     ActionType = "photo"
	ActionVideo     ActionType = "video"
	ActionAnimation ActionType = "animation"
	ActionDocument  ActionType = "document"
)

// Action is a named, tenant-scoped content record addressed by a callback
// or command key. DelaySeconds > 0 defers the visible result.
type Action struct {
	TenantID     uuid.UUID  `db:"tenant_id"`
	Key          string     `db:"key"`
	Type         ActionType `db:"type"`
	Body         string     `db:"body"`
	MediaFileID  *string    `db:"media_file_id"`
	DelaySeconds int        `db:"delay_seconds"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// WithdrawalStatus enumerates the withdrawal request lifecycle.
// PENDING transitions exactly once to a terminal state.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "PENDING"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
)

// Withdrawal is a user's payout request.
type Withdrawal struct {
	ID             uuid.UUID        `db:"id"`
	TenantID       uuid.UUID        `db:"tenant_id"`
	UserID         int64            `db:"user_id"`
	RequestText    string           `db:"request_text"`
	Status         WithdrawalStatus `db:"status"`
	ApprovedAmount *decimal.Decimal `db:"approved_amount"`
	RequestedAt    time.Time        `db:"requested_at"`
	ProcessedAt    *time.Time       `db:"processed_at"`
	ProcessedBy    *int64           `db:"processed_by"`
}

// TenantAdmin grants a user admin rights within one tenant, optionally
// expiring at a fixed time.
type TenantAdmin struct {
	TenantID  uuid.UUID  `db:"tenant_id"`
	UserID    int64      `db:"user_id"`
	ExpiresAt *time.Time `db:"expires_at"`
	AddedAt   time.Time  `db:"added_at"`
}

// QuotaStats is the resolved daily usage picture for one user.
// Limit and Remaining are nil when usage is unlimited.
type QuotaStats struct {
	Used      int
	Limit     *int
	Remaining *int
	ResetAt   time.Time
}

// FeatureMedia is the stored media card for one result-feature provider.
type FeatureMedia struct {
	TenantID  uuid.UUID `db:"tenant_id"`
	Provider  string    `db:"provider"`
	MediaType string    `db:"media_type"`
	FileID    string    `db:"file_id"`
	UpdatedAt time.Time `db:"updated_at"`
}
