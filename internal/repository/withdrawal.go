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

// ErrInsufficientBalance signals an approval amount above the user's
// current balance. No mutation happens in that case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// WithdrawalRepository handles payout request persistence and the
// transactional status transitions.
type WithdrawalRepository struct {
	pool *pgxpool.Pool
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(pool *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{pool: pool}
}

const withdrawalColumns = `id, tenant_id, user_id, request_text, status,
	approved_amount, requested_at, processed_at, processed_by`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.TenantID, &w.UserID, &w.RequestText, &w.Status,
		&w.ApprovedAmount, &w.RequestedAt, &w.ProcessedAt, &w.ProcessedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	return &w, nil
}

// Create records a new PENDING request.
func (r *WithdrawalRepository) Create(ctx context.Context, tenantID uuid.UUID, userID int64, requestText string) (*model.Withdrawal, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx, `
		INSERT INTO withdrawals (id, tenant_id, user_id, request_text)
		VALUES ($1, $2, $3, $4)
		RETURNING `+withdrawalColumns,
		uuid.New(), tenantID, userID, requestText))
}

// Get retrieves one request by id.
func (r *WithdrawalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
}

// ApproveResult carries the committed outcome of an approval so callers
// can notify without re-reading state.
type ApproveResult struct {
	Withdrawal    *model.Withdrawal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// Approve transitions PENDING → APPROVED and debits the user's balance,
// all inside one transaction with the request and user rows locked.
// Returns ErrAlreadyProcessed when the request is no longer PENDING and
// ErrInsufficientBalance when the amount exceeds the balance; neither
// mutates anything.
func (r *WithdrawalRepository) Approve(ctx context.Context, id uuid.UUID, amount decimal.Decimal, processedBy int64) (*ApproveResult, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("approval amount must be positive")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalPending {
		return nil, ErrAlreadyProcessed
	}

	var balanceBefore decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT balance FROM users
		WHERE tenant_id = $1 AND user_id = $2 FOR UPDATE
	`, w.TenantID, w.UserID).Scan(&balanceBefore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user balance: %w", err)
	}

	if balanceBefore.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET balance = balance - $3
		WHERE tenant_id = $1 AND user_id = $2
	`, w.TenantID, w.UserID, amount); err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	w, err = scanWithdrawal(tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, approved_amount = $3, processed_at = NOW(), processed_by = $4
		WHERE id = $1
		RETURNING `+withdrawalColumns,
		id, model.WithdrawalApproved, amount, processedBy))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return &ApproveResult{
		Withdrawal:    w,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore.Sub(amount),
	}, nil
}

// Reject transitions PENDING → REJECTED under the same locking
// discipline. The balance is untouched.
func (r *WithdrawalRepository) Reject(ctx context.Context, id uuid.UUID, processedBy int64) (*model.Withdrawal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalPending {
		return nil, ErrAlreadyProcessed
	}

	w, err = scanWithdrawal(tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, processed_at = NOW(), processed_by = $3
		WHERE id = $1
		RETURNING `+withdrawalColumns,
		id, model.WithdrawalRejected, processedBy))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}
	return w, nil
}

// ListPending returns a tenant's open requests, oldest first.
func (r *WithdrawalRepository) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE tenant_id = $1 AND status = $2
		ORDER BY requested_at
	`, tenantID, model.WithdrawalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
