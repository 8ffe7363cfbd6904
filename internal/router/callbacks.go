package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/scheduler"
	"telegram-affiliate-bot/internal/service"
)

func (r *Router) handleCallback(ctx context.Context, tenant *model.Tenant, cq *tgbotapi.CallbackQuery) {
	from := cq.From
	if from == nil || cq.Message == nil {
		return
	}
	data := cq.Data

	user, _, err := r.registerFromMessage(ctx, tenant, from, nil)
	if err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to upsert user on callback")
		return
	}

	switch {
	case data == "gate:recheck":
		r.handleGateRecheck(ctx, tenant, user, cq)
	case data == markup.WithdrawCallbackData:
		r.handleWithdrawRequest(ctx, tenant, user, cq)
	case strings.HasPrefix(data, "adm:"):
		r.handlePremiumDecision(ctx, tenant, user, cq)
	case strings.HasPrefix(data, "wd:"):
		r.handleWithdrawDecision(ctx, tenant, user, cq)
	default:
		if key, delayOverride, ok := markup.ParseCallbackData(data); ok {
			r.handleActionCallback(ctx, tenant, user, cq, key, delayOverride)
		} else {
			r.answer(ctx, tenant, cq.ID, "", false)
		}
	}
}

func (r *Router) answer(ctx context.Context, tenant *model.Tenant, callbackID, text string, alert bool) {
	r.client.AnswerCallback(ctx, tenant, callbackID, text, alert)
}

// actionKey canonicalizes a callback key: a scan_<provider> alias
// addresses the provider's own action row, so cooldown marks, quota and
// lookups all share one key per provider.
func actionKey(key string) string {
	return service.NormalizeProviderKey(key)
}

func (r *Router) handleGateRecheck(ctx context.Context, tenant *model.Tenant, user *model.User, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID

	if !r.passesJoinGate(ctx, tenant, user.UserID) {
		r.answer(ctx, tenant, cq.ID, "❌ You haven't joined every channel yet.", true)
		return
	}
	r.answer(ctx, tenant, cq.ID, "✅ Membership confirmed!", false)

	// The remaining gates may still hold the user back.
	if !r.ensureAccess(ctx, tenant, user, chatID) {
		return
	}
	if _, err := r.client.SendText(ctx, tenant, chatID,
		"✅ You're all set. Send /start to begin.", nil); err != nil {
		log.Warn().Err(err).Msg("Failed to send recheck confirmation")
	}
}

// handleWithdrawRequest opens the withdrawal conversation: prompt for the
// amount and arm the session state that captures the next message.
func (r *Router) handleWithdrawRequest(ctx context.Context, tenant *model.Tenant, user *model.User, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID

	if !r.ensureAccess(ctx, tenant, user, chatID) {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	minWD := r.ledger.MinWithdraw(tenant)
	if user.Balance.LessThan(minWD) {
		r.answer(ctx, tenant, cq.ID,
			fmt.Sprintf("⚠️ Minimum withdrawal is RM%s. Your balance: RM%s.",
				minWD.StringFixed(2), user.Balance.StringFixed(2)), true)
		return
	}

	prompt := "💸 Send the amount and your bank details, e.g.\n<code>50.00 Maybank 1234567890</code>"
	if tenant.WithdrawAskText != nil && *tenant.WithdrawAskText != "" {
		prompt = r.renderer(tenant).Render(*tenant.WithdrawAskText, user)
	}
	msgID, err := r.client.SendText(ctx, tenant, chatID, prompt, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send withdrawal prompt")
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	if err := r.sessions.Set(ctx, tenant.ID, user.UserID, model.AwaitWithdrawInput{PromptMessageID: msgID}); err != nil {
		log.Error().Err(err).Msg("Failed to arm withdrawal session")
	}
	r.answer(ctx, tenant, cq.ID, "", false)
}

// handlePremiumDecision processes adm:ap:<uid> / adm:rj:<uid> taps on the
// operator's pending-approval card.
func (r *Router) handlePremiumDecision(ctx context.Context, tenant *model.Tenant, operator *model.User, cq *tgbotapi.CallbackQuery) {
	if !r.isOperator(ctx, tenant, operator.UserID) {
		r.answer(ctx, tenant, cq.ID, "⛔ Operators only.", true)
		return
	}

	parts := strings.SplitN(cq.Data, ":", 3)
	if len(parts) != 3 {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}
	targetID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}
	// Operators and the owner are implicitly approved.
	if targetID == tenant.OwnerUserID || r.isOperator(ctx, tenant, targetID) {
		r.answer(ctx, tenant, cq.ID, "⚠️ That account is an operator.", true)
		return
	}

	var stamp string
	switch parts[1] {
	case "ap":
		if err := r.ledger.ApprovePremium(ctx, tenant, targetID); err != nil {
			log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to approve premium")
			r.answer(ctx, tenant, cq.ID, "⚠️ Approval failed, try again.", true)
			return
		}
		stamp = "✅ <b>APPROVED</b>"
	case "rj":
		if err := r.ledger.RejectPremium(ctx, tenant, targetID); err != nil {
			log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to reject premium")
			r.answer(ctx, tenant, cq.ID, "⚠️ Rejection failed, try again.", true)
			return
		}
		stamp = "❌ <b>REJECTED</b>"
	default:
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	r.stampOperatorCard(ctx, tenant, cq, stamp)
	r.answer(ctx, tenant, cq.ID, "Done", false)
}

// stampOperatorCard appends the decision to the operator card and removes
// the buttons, skipping the stamp when one is already present.
func (r *Router) stampOperatorCard(ctx context.Context, tenant *model.Tenant, cq *tgbotapi.CallbackQuery, stamp string) {
	text := messageHTML(cq.Message)
	if !strings.Contains(text, "<b>APPROVED</b>") && !strings.Contains(text, "<b>REJECTED</b>") {
		text = text + "\n\n" + stamp
	}
	if err := r.client.EditText(ctx, tenant, cq.Message.Chat.ID, cq.Message.MessageID, text, [][]markup.Button{}); err != nil {
		log.Warn().Err(err).Msg("Failed to stamp operator card")
	}
}

// handleWithdrawDecision processes wd:ap:<uuid> / wd:rj:<uuid> taps.
func (r *Router) handleWithdrawDecision(ctx context.Context, tenant *model.Tenant, operator *model.User, cq *tgbotapi.CallbackQuery) {
	if !r.isOperator(ctx, tenant, operator.UserID) {
		r.answer(ctx, tenant, cq.ID, "⛔ Operators only.", true)
		return
	}

	parts := strings.SplitN(cq.Data, ":", 3)
	if len(parts) != 3 {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	op := service.Operator{UserID: operator.UserID, FirstName: operator.FirstName}
	if operator.Username != nil {
		op.Username = *operator.Username
	}
	opMsg := &service.OperatorMessage{
		ChatID:      cq.Message.Chat.ID,
		MessageID:   cq.Message.MessageID,
		CurrentText: messageHTML(cq.Message),
	}

	switch parts[1] {
	case "ap":
		w, err := r.ledger.Withdrawal(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("withdrawal_id", id.String()).Msg("Failed to load withdrawal")
			r.answer(ctx, tenant, cq.ID, "⚠️ Request not found.", true)
			return
		}
		amount, err := service.ParseAmount(w.RequestText)
		if err != nil {
			r.answer(ctx, tenant, cq.ID, "⚠️ No amount found in the request text.", true)
			return
		}
		if _, err := r.ledger.ApproveWithdrawal(ctx, tenant, id, amount, op, opMsg); err != nil {
			switch {
			case errors.Is(err, service.ErrAlreadyProcessed):
				r.answer(ctx, tenant, cq.ID, "⚠️ Already processed.", true)
			case errors.Is(err, service.ErrInsufficientBalance):
				r.answer(ctx, tenant, cq.ID, "⚠️ User balance is below the requested amount.", true)
			default:
				log.Error().Err(err).Str("withdrawal_id", id.String()).Msg("Failed to approve withdrawal")
				r.answer(ctx, tenant, cq.ID, "⚠️ Approval failed, try again.", true)
			}
			return
		}
		r.answer(ctx, tenant, cq.ID, "✅ Approved", false)
	case "rj":
		if _, err := r.ledger.RejectWithdrawal(ctx, tenant, id, op, opMsg); err != nil {
			if errors.Is(err, service.ErrAlreadyProcessed) {
				r.answer(ctx, tenant, cq.ID, "⚠️ Already processed.", true)
				return
			}
			log.Error().Err(err).Str("withdrawal_id", id.String()).Msg("Failed to reject withdrawal")
			r.answer(ctx, tenant, cq.ID, "⚠️ Rejection failed, try again.", true)
			return
		}
		r.answer(ctx, tenant, cq.ID, "❌ Rejected", false)
	default:
		r.answer(ctx, tenant, cq.ID, "", false)
	}
}

// handleActionCallback resolves a cb:<key> tap: gates, cooldown, quota for
// result features, then the action content either in place or deferred.
func (r *Router) handleActionCallback(ctx context.Context, tenant *model.Tenant, user *model.User, cq *tgbotapi.CallbackQuery, key string, delayOverride int) {
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	key = actionKey(key)

	if !r.ensureAccess(ctx, tenant, user, chatID) {
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	remaining, err := r.guard.CheckCooldown(ctx, tenant.ID, user.UserID, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Cooldown check failed")
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}
	if remaining > 0 {
		r.answer(ctx, tenant, cq.ID,
			fmt.Sprintf("⏳ Slow down! Try again in %ds.", remaining), true)
		return
	}

	isProvider, err := r.features.IsProvider(ctx, tenant.ID, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Provider lookup failed")
		isProvider = false
	}

	// Result features draw from the daily quota; plain content does not.
	if isProvider {
		allowed, stats, err := r.guard.TryConsumeDaily(ctx, tenant, user.UserID)
		if err != nil {
			log.Error().Err(err).Msg("Quota check failed")
			r.answer(ctx, tenant, cq.ID, "", false)
			return
		}
		if !allowed {
			r.answer(ctx, tenant, cq.ID, "", false)
			r.sendQuotaLimit(ctx, tenant, user, chatID, stats)
			return
		}
	}

	action, err := r.actions.Get(ctx, tenant.ID, key)
	if err != nil && !errors.Is(err, repository.ErrActionNotFound) {
		log.Error().Err(err).Str("key", key).Msg("Failed to load action")
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	if action == nil {
		// No stored content: a provider key still renders a live card.
		if isProvider {
			r.answer(ctx, tenant, cq.ID, "", false)
			r.applyFeatureResult(ctx, tenant, user, chatID, messageID, key)
			return
		}
		r.answer(ctx, tenant, cq.ID, "", false)
		return
	}

	delay := action.DelaySeconds
	if delayOverride >= 0 {
		delay = delayOverride
	}

	r.answer(ctx, tenant, cq.ID, "", false)

	if delay <= 0 {
		if err := r.editActionContent(ctx, tenant, user, chatID, messageID, action); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to edit action content")
		}
		return
	}

	if err := r.client.EditText(ctx, tenant, chatID, messageID, loadingText(tenant), nil); err != nil {
		if capErr := r.client.EditCaption(ctx, tenant, chatID, messageID, loadingText(tenant), nil); capErr != nil {
			log.Warn().Err(capErr).Msg("Failed to show loading placeholder")
		}
	}
	r.scheduleAction(ctx, tenant, chatID, user.UserID, messageID, key, delay)
}

// sendQuotaLimit delivers the tenant's quota-exceeded slot with the usage
// tokens resolved.
func (r *Router) sendQuotaLimit(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64, stats model.QuotaStats) {
	tpl := "🚫 Daily limit reached ({used}/{limit}).\nResets at {reset}."
	if tenant.QuotaLimitText != nil && *tenant.QuotaLimitText != "" {
		tpl = *tenant.QuotaLimitText
	}
	text := markup.ApplyQuotaTokens(r.renderer(tenant).Render(tpl, user), stats, r.loc)

	if tenant.QuotaLimitMedia.Set() {
		if _, err := r.client.SendMedia(ctx, tenant, chatID, *tenant.QuotaLimitMedia.Type, *tenant.QuotaLimitMedia.FileID, text, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send quota-limit message")
		}
		return
	}
	if _, err := r.client.SendText(ctx, tenant, chatID, text, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to send quota-limit message")
	}
}

// applyFeatureResult renders the provider card onto an existing message.
func (r *Router) applyFeatureResult(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64, messageID int, key string) {
	res, err := r.features.Render(ctx, tenant.ID, key, user.FirstName)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to render feature result")
		return
	}

	if res.Media != nil {
		if err := r.client.EditMedia(ctx, tenant, chatID, messageID, res.Media.MediaType, res.Media.FileID, res.Caption, res.Keyboard); err != nil {
			log.Warn().Err(err).Msg("Failed to edit feature media")
		}
		return
	}
	if err := r.client.EditText(ctx, tenant, chatID, messageID, res.Caption, res.Keyboard); err != nil {
		if capErr := r.client.EditCaption(ctx, tenant, chatID, messageID, res.Caption, res.Keyboard); capErr != nil {
			log.Warn().Err(capErr).Msg("Failed to edit feature result")
		}
	}
}

// scheduleAction enqueues the deferred delivery of an action key.
func (r *Router) scheduleAction(ctx context.Context, tenant *model.Tenant, chatID, userID int64, messageID int, key string, delaySeconds int) {
	if r.sched == nil {
		log.Error().Msg("No scheduler attached, dropping deferred action")
		return
	}
	task := scheduler.Task{
		TenantID:  tenant.ID.String(),
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Key:       key,
	}
	if err := r.sched.Schedule(ctx, task, time.Duration(delaySeconds)*time.Second); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to schedule deferred action")
	}
}
