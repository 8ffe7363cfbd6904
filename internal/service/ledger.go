package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
)

// Ledger-related errors.
var (
	ErrBelowMinimum        = errors.New("balance below withdrawal minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoAmount            = errors.New("no amount found in request")
	ErrAlreadyProcessed    = errors.New("request already processed")
	ErrPhoneTaken          = errors.New("phone number already registered")
)

var amountRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// Operator identifies the admin performing a terminal transition, for the
// audit annotation on the operator-facing message.
type Operator struct {
	UserID    int64
	FirstName string
	Username  string
}

// OperatorMessage references the operator-facing message that carried the
// approve/reject buttons, so it can be annotated after the transition.
type OperatorMessage struct {
	ChatID      int64
	MessageID   int
	CurrentText string
}

// LedgerService owns every balance mutation: referral credits, withdrawal
// transitions, and the premium-access gate. Outbound notifications happen
// only after the owning transaction commits and never roll it back.
type LedgerService struct {
	users       *repository.UserRepository
	withdrawals *repository.WithdrawalRepository
	messenger   Messenger

	defaultCredit      decimal.Decimal
	defaultMinWithdraw decimal.Decimal
	loc                *time.Location
	rand               *rand.Rand
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	users *repository.UserRepository,
	withdrawals *repository.WithdrawalRepository,
	messenger Messenger,
	defaultCredit, defaultMinWithdraw decimal.Decimal,
	loc *time.Location,
) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerService{
		users:              users,
		withdrawals:        withdrawals,
		messenger:          messenger,
		defaultCredit:      defaultCredit,
		defaultMinWithdraw: defaultMinWithdraw,
		loc:                loc,
		rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreditAmount resolves the per-referral credit for a tenant.
func (s *LedgerService) CreditAmount(t *model.Tenant) decimal.Decimal {
	if t.AffiliateAmount != nil && t.AffiliateAmount.Sign() > 0 {
		return *t.AffiliateAmount
	}
	return s.defaultCredit
}

// MinWithdraw resolves the minimum withdrawal amount for a tenant.
func (s *LedgerService) MinWithdraw(t *model.Tenant) decimal.Decimal {
	if t.MinWithdraw != nil && t.MinWithdraw.Sign() > 0 {
		return *t.MinWithdraw
	}
	return s.defaultMinWithdraw
}

// RegisterUser upserts the user on an inbound event and applies the
// referral credit when this is genuinely the first contact with a valid
// upline. Returns the row and whether it was newly created.
func (s *LedgerService) RegisterUser(ctx context.Context, tenant *model.Tenant, userID int64, username *string, firstName string, uplineID *int64) (*model.User, bool, error) {
	memberID := fmt.Sprintf("%06d", 100000+s.rand.Intn(900000))
	return s.users.Upsert(ctx, tenant.ID, userID, username, firstName, memberID, uplineID, s.CreditAmount(tenant))
}

// ParseAmount extracts the first decimal number from a free-text request.
func ParseAmount(text string) (decimal.Decimal, error) {
	m := amountRe.FindString(text)
	if m == "" {
		return decimal.Zero, ErrNoAmount
	}
	amt, err := decimal.NewFromString(m)
	if err != nil || amt.Sign() <= 0 {
		return decimal.Zero, ErrNoAmount
	}
	return amt, nil
}

// Withdrawal loads one request by id.
func (s *LedgerService) Withdrawal(ctx context.Context, id uuid.UUID) (*model.Withdrawal, error) {
	return s.withdrawals.Get(ctx, id)
}

// PendingWithdrawals lists the open requests for a tenant.
func (s *LedgerService) PendingWithdrawals(ctx context.Context, tenantID uuid.UUID) ([]*model.Withdrawal, error) {
	return s.withdrawals.ListPending(ctx, tenantID)
}

// RequestWithdrawal validates and records a payout request, then notifies
// the operator chat with approve/reject controls. Validation failures
// create no request row: the caller relays the sentinel to the user.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, tenant *model.Tenant, user *model.User, requestText string) (*model.Withdrawal, error) {
	minWD := s.MinWithdraw(tenant)
	if user.Balance.LessThan(minWD) {
		return nil, ErrBelowMinimum
	}

	amount, err := ParseAmount(requestText)
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	w, err := s.withdrawals.Create(ctx, tenant.ID, user.UserID, requestText)
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	s.notifyOperatorNewRequest(ctx, tenant, user, w, amount)
	return w, nil
}

func (s *LedgerService) notifyOperatorNewRequest(ctx context.Context, tenant *model.Tenant, user *model.User, w *model.Withdrawal, amount decimal.Decimal) {
	chatID := tenant.AdminChatID
	if chatID == 0 {
		chatID = tenant.OwnerUserID
	}

	uname := "-"
	if user.Username != nil && *user.Username != "" {
		uname = "@" + *user.Username
	}
	text := fmt.Sprintf(
		"💸 <b>WITHDRAWAL REQUEST</b>\n"+
			"User: %s (%s)\n"+
			"Member: %s\n"+
			"Balance: RM%s\n"+
			"Request: %s\n"+
			"Amount: RM%s",
		html.EscapeString(user.FirstName), uname,
		html.EscapeString(user.MemberID),
		user.Balance.StringFixed(2),
		html.EscapeString(w.RequestText),
		amount.StringFixed(2),
	)
	keyboard := [][]markup.Button{{
		{Text: "✅ Approve", CallbackData: "wd:ap:" + w.ID.String()},
		{Text: "❌ Reject", CallbackData: "wd:rj:" + w.ID.String()},
	}}

	if _, err := s.messenger.SendText(ctx, tenant, chatID, text, keyboard); err != nil {
		log.Error().Err(err).
			Str("tenant_id", tenant.ID.String()).
			Str("withdrawal_id", w.ID.String()).
			Msg("Failed to notify operator of withdrawal request")
	}
}

// ApproveWithdrawal performs the PENDING → APPROVED transition, then
// notifies the user and annotates the operator message. A non-PENDING
// request yields ErrAlreadyProcessed with no mutation.
func (s *LedgerService) ApproveWithdrawal(ctx context.Context, tenant *model.Tenant, id uuid.UUID, amount decimal.Decimal, op Operator, opMsg *OperatorMessage) (*repository.ApproveResult, error) {
	res, err := s.withdrawals.Approve(ctx, id, amount, op.UserID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyProcessed):
			return nil, ErrAlreadyProcessed
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	// Post-commit: notification failure never unwinds the debit.
	tpl := "✅ <b>WITHDRAWAL APPROVED</b>\nAmount: <b>{amount}</b>\nBalance: <b>{balance_after}</b>"
	if tenant.ApproveWDText != nil && *tenant.ApproveWDText != "" {
		tpl = *tenant.ApproveWDText
	}
	text := renderWithdrawalTemplate(tpl, amount, res.BalanceBefore, res.BalanceAfter)
	if err := sendSlot(ctx, s.messenger, tenant, res.Withdrawal.UserID, text, tenant.ApproveWDMedia, nil); err != nil {
		log.Error().Err(err).
			Str("withdrawal_id", id.String()).
			Msg("Failed to notify user of approval")
	}

	s.annotateOperatorMessage(ctx, tenant, opMsg, op, "✅ <b>APPROVED</b>")
	return res, nil
}

// RejectWithdrawal performs the PENDING → REJECTED transition. The
// balance is untouched.
func (s *LedgerService) RejectWithdrawal(ctx context.Context, tenant *model.Tenant, id uuid.UUID, op Operator, opMsg *OperatorMessage) (*model.Withdrawal, error) {
	w, err := s.withdrawals.Reject(ctx, id, op.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	tpl := "❌ <b>WITHDRAWAL REJECTED</b>\nPlease check the details and try again."
	if tenant.RejectWDText != nil && *tenant.RejectWDText != "" {
		tpl = *tenant.RejectWDText
	}
	text := renderWithdrawalTemplate(tpl, decimal.Zero, decimal.Zero, decimal.Zero)
	if err := sendSlot(ctx, s.messenger, tenant, w.UserID, text, tenant.RejectWDMedia, nil); err != nil {
		log.Error().Err(err).
			Str("withdrawal_id", id.String()).
			Msg("Failed to notify user of rejection")
	}

	s.annotateOperatorMessage(ctx, tenant, opMsg, op, "❌ <b>REJECTED</b>")
	return w, nil
}

// annotateOperatorMessage stamps the terminal state onto the operator
// message and strips the buttons. Idempotent: an already-terminal
// annotation is never overwritten with a second stamp.
func (s *LedgerService) annotateOperatorMessage(ctx context.Context, tenant *model.Tenant, opMsg *OperatorMessage, op Operator, stamp string) {
	if opMsg == nil || opMsg.ChatID == 0 || opMsg.MessageID == 0 {
		return
	}

	text := opMsg.CurrentText
	if !strings.Contains(text, "<b>APPROVED</b>") && !strings.Contains(text, "<b>REJECTED</b>") {
		who := "@" + op.Username
		if op.Username == "" {
			who = fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, op.UserID, html.EscapeString(op.FirstName))
		}
		stampTime := time.Now().In(s.loc).Format("2006-01-02 15:04:05")
		text = fmt.Sprintf("%s\n\n%s\nBy: %s\nAt: %s", text, stamp, who, stampTime)
	}

	if err := s.messenger.EditText(ctx, tenant, opMsg.ChatID, opMsg.MessageID, text, [][]markup.Button{}); err != nil {
		log.Error().Err(err).Msg("Failed to annotate operator withdrawal message")
	}
}

// renderWithdrawalTemplate substitutes the withdrawal token set.
func renderWithdrawalTemplate(tpl string, amount, before, after decimal.Decimal) string {
	out := strings.ReplaceAll(tpl, "{amount}", "RM"+amount.StringFixed(2))
	out = strings.ReplaceAll(out, "{balance_before}", "RM"+before.StringFixed(2))
	out = strings.ReplaceAll(out, "{balance_after}", "RM"+after.StringFixed(2))
	return out
}

// VerifyContact records a shared phone number. When the tenant requires
// manual approval and the user is not yet premium, the operator chat is
// asked to approve; otherwise the approval slot goes straight out.
// A phone already serving another account in this tenant is rejected
// until an operator clears the old row.
func (s *LedgerService) VerifyContact(ctx context.Context, tenant *model.Tenant, user *model.User, phone string) (held bool, err error) {
	if err := s.users.SetPhone(ctx, tenant.ID, user.UserID, phone); err != nil {
		if errors.Is(err, repository.ErrPhoneTaken) {
			return false, ErrPhoneTaken
		}
		return false, err
	}

	if tenant.ManualApproval && !user.Premium {
		s.notifyOperatorPendingApproval(ctx, tenant, user, phone)
		return true, nil
	}

	s.SendApproval(ctx, tenant, user)
	return false, nil
}

func (s *LedgerService) notifyOperatorPendingApproval(ctx context.Context, tenant *model.Tenant, user *model.User, phone string) {
	chatID := tenant.AdminChatID
	if chatID == 0 {
		chatID = tenant.OwnerUserID
	}

	uname := "-"
	if user.Username != nil && *user.Username != "" {
		uname = "@" + *user.Username
	}
	text := fmt.Sprintf(
		"🆕 <b>NEW VERIFIED MEMBER</b>\n"+
			"User: %s (%s)\n"+
			"Member: %s\n"+
			"Phone: %s\n"+
			"Premium: NO",
		html.EscapeString(user.FirstName), uname,
		html.EscapeString(user.MemberID),
		html.EscapeString(phone),
	)
	keyboard := [][]markup.Button{{
		{Text: "✅ Approve Premium", CallbackData: fmt.Sprintf("adm:ap:%d", user.UserID)},
		{Text: "❌ Reject", CallbackData: fmt.Sprintf("adm:rj:%d", user.UserID)},
	}}

	if _, err := s.messenger.SendText(ctx, tenant, chatID, text, keyboard); err != nil {
		log.Error().Err(err).
			Str("tenant_id", tenant.ID.String()).
			Int64("user_id", user.UserID).
			Msg("Failed to notify operator of pending approval")
	}
}

// SendApproval delivers the tenant's approval slot to the user.
func (s *LedgerService) SendApproval(ctx context.Context, tenant *model.Tenant, user *model.User) {
	text := "✅ Verification complete. Welcome aboard!"
	if tenant.ApprovalText != nil && *tenant.ApprovalText != "" {
		text = *tenant.ApprovalText
	}
	if err := sendSlot(ctx, s.messenger, tenant, user.UserID, text, tenant.ApprovalMedia, nil); err != nil {
		log.Error().Err(err).Int64("user_id", user.UserID).Msg("Failed to send approval message")
	}
}

// ApprovePremium flips the premium flag and notifies the user. Admins and
// owners are implicitly approved and must never be gated, so callers
// filter them out before reaching here.
func (s *LedgerService) ApprovePremium(ctx context.Context, tenant *model.Tenant, userID int64) error {
	if err := s.users.SetPremium(ctx, tenant.ID, userID, true); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, tenant.ID, userID)
	if err != nil {
		return err
	}
	s.SendApproval(ctx, tenant, user)
	return nil
}

// RejectPremium clears the premium flag and delivers the rejection slot.
func (s *LedgerService) RejectPremium(ctx context.Context, tenant *model.Tenant, userID int64) error {
	if err := s.users.SetPremium(ctx, tenant.ID, userID, false); err != nil {
		return err
	}
	text := "❌ Your access request was not approved."
	if tenant.RejectionText != nil && *tenant.RejectionText != "" {
		text = *tenant.RejectionText
	}
	if err := sendSlot(ctx, s.messenger, tenant, userID, text, tenant.RejectionMedia, nil); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to send rejection message")
	}
	return nil
}
