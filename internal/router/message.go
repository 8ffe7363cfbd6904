package router

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/service"
)

func (r *Router) handleMessage(ctx context.Context, tenant *model.Tenant, msg *tgbotapi.Message) {
	from := msg.From
	if from == nil || from.IsBot {
		return
	}
	chatID := msg.Chat.ID

	if msg.Contact != nil {
		r.handleContact(ctx, tenant, msg)
		return
	}

	// /start carries the upline reference and must reach the ledger
	// before the generic upsert, or the referral would be lost.
	if name, args, ok := parseCommand(msg); ok && name == "start" {
		r.handleStart(ctx, tenant, msg, args)
		return
	}

	user, _, err := r.registerFromMessage(ctx, tenant, from, nil)
	if err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to upsert user")
		return
	}

	// An active session owns the next free-text message exclusively:
	// never fall through to command parsing while one is pending.
	state, err := r.sessions.Get(ctx, tenant.ID, from.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load session")
		return
	}
	if state != nil {
		r.dispatchSession(ctx, tenant, user, msg, state)
		return
	}

	if name, args, ok := parseCommand(msg); ok {
		r.handleCommand(ctx, tenant, user, msg, name, args)
		return
	}

	// Free text with no session and no command is ignored.
	_ = chatID
}

// registerFromMessage upserts the sender's profile snapshot.
func (r *Router) registerFromMessage(ctx context.Context, tenant *model.Tenant, from *tgbotapi.User, uplineID *int64) (*model.User, bool, error) {
	var username *string
	if from.UserName != "" {
		u := from.UserName
		username = &u
	}
	return r.ledger.RegisterUser(ctx, tenant, from.ID, username, from.FirstName, uplineID)
}

// parseCommand extracts a normalized command token: lowercase, with the
// platform's @botname suffix stripped. Returns ok=false for non-commands.
func parseCommand(msg *tgbotapi.Message) (name, args string, ok bool) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	rest := text[1:]
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		name = rest
	}
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	if name == "" {
		return "", "", false
	}
	return name, args, true
}

func (r *Router) handleStart(ctx context.Context, tenant *model.Tenant, msg *tgbotapi.Message, args string) {
	from := msg.From
	chatID := msg.Chat.ID

	var uplineID *int64
	if args != "" {
		if id, err := strconv.ParseInt(strings.Fields(args)[0], 10, 64); err == nil && id > 0 {
			uplineID = &id
		}
	}

	user, _, err := r.registerFromMessage(ctx, tenant, from, uplineID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", from.ID).Msg("Failed to register user on start")
		return
	}

	// Starting over abandons any pending multi-step operation.
	if err := r.sessions.Clear(ctx, tenant.ID, from.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to clear session on start")
	}

	if !r.ensureAccess(ctx, tenant, user, chatID) {
		return
	}

	tpl := "Welcome {firstname}!\n\n!1share Share Link"
	if tenant.StartText != nil && *tenant.StartText != "" {
		tpl = *tenant.StartText
	}
	text, kb := r.renderContent(ctx, tenant, user, tpl)

	if tenant.StartMedia.Set() {
		if _, err := r.client.SendMedia(ctx, tenant, chatID, *tenant.StartMedia.Type, *tenant.StartMedia.FileID, text, kb); err != nil {
			log.Warn().Err(err).Msg("Failed to send start message")
		}
		return
	}
	if _, err := r.client.SendText(ctx, tenant, chatID, text, kb); err != nil {
		log.Warn().Err(err).Msg("Failed to send start message")
	}
}

func (r *Router) handleContact(ctx context.Context, tenant *model.Tenant, msg *tgbotapi.Message) {
	from := msg.From
	chatID := msg.Chat.ID

	// Only the user's own contact card counts as verification.
	if msg.Contact.UserID != from.ID {
		if _, err := r.client.SendText(ctx, tenant, chatID,
			"⚠️ Please share your own contact, not someone else's.", nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send contact warning")
		}
		return
	}

	user, _, err := r.registerFromMessage(ctx, tenant, from, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upsert user on contact")
		return
	}

	held, err := r.ledger.VerifyContact(ctx, tenant, user, msg.Contact.PhoneNumber)
	if err != nil {
		if errors.Is(err, service.ErrPhoneTaken) {
			if sendErr := r.client.RemoveReplyKeyboard(ctx, tenant, chatID,
				"⚠️ This phone number is already registered to another account. Contact support if this is yours."); sendErr != nil {
				log.Warn().Err(sendErr).Msg("Failed to send phone-taken notice")
			}
			return
		}
		log.Error().Err(err).Msg("Failed to verify contact")
		return
	}

	if held {
		if err := r.client.RemoveReplyKeyboard(ctx, tenant, chatID,
			"✅ Number received. Your access is awaiting approval."); err != nil {
			log.Warn().Err(err).Msg("Failed to send verification reply")
		}
		return
	}
	if err := r.client.RemoveReplyKeyboard(ctx, tenant, chatID, "✅ Number verified, thank you!"); err != nil {
		log.Warn().Err(err).Msg("Failed to send verification reply")
	}
}

// dispatchSession routes free text to the active session's handler and
// clears the state afterwards, success or failure.
func (r *Router) dispatchSession(ctx context.Context, tenant *model.Tenant, user *model.User, msg *tgbotapi.Message, state model.SessionState) {
	defer func() {
		if err := r.sessions.Clear(ctx, tenant.ID, user.UserID); err != nil {
			log.Error().Err(err).Msg("Failed to clear session after dispatch")
		}
	}()

	switch state.(type) {
	case model.AwaitWithdrawInput:
		r.handleWithdrawInput(ctx, tenant, user, msg)
	case model.AwaitExternalToken:
		r.handleExternalToken(ctx, tenant, user, msg)
	}
}

func (r *Router) handleWithdrawInput(ctx context.Context, tenant *model.Tenant, user *model.User, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	_, err := r.ledger.RequestWithdrawal(ctx, tenant, user, msg.Text)
	if err != nil {
		var reply string
		switch {
		case errors.Is(err, service.ErrBelowMinimum):
			reply = "⚠️ Your balance is below the withdrawal minimum of RM" +
				r.ledger.MinWithdraw(tenant).StringFixed(2) + "."
		case errors.Is(err, service.ErrNoAmount):
			reply = "⚠️ Please include the amount, e.g. \"50.00 to Maybank 1234\"."
		case errors.Is(err, service.ErrInsufficientBalance):
			reply = "⚠️ Insufficient balance. Your balance is RM" + user.Balance.StringFixed(2) + "."
		default:
			log.Error().Err(err).Msg("Failed to create withdrawal request")
			reply = "⚠️ Something went wrong, please try again."
		}
		if _, sendErr := r.client.SendText(ctx, tenant, chatID, reply, nil); sendErr != nil {
			log.Warn().Err(sendErr).Msg("Failed to send withdrawal error reply")
		}
		return
	}

	if _, err := r.client.SendText(ctx, tenant, chatID,
		"✅ Withdrawal request received. You will be notified once it is processed.", nil); err != nil {
		log.Warn().Err(err).Msg("Failed to send withdrawal confirmation")
	}
}

func (r *Router) handleExternalToken(ctx context.Context, tenant *model.Tenant, user *model.User, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	token := strings.TrimSpace(msg.Text)

	if r.tokenReceiver == nil {
		if _, err := r.client.SendText(ctx, tenant, chatID, "⚠️ This feature is not available right now.", nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send token reply")
		}
		return
	}

	if err := r.tokenReceiver.ReceiveToken(ctx, tenant, user.UserID, token); err != nil {
		log.Error().Err(err).Msg("Token hand-off failed")
		if _, sendErr := r.client.SendText(ctx, tenant, chatID, "⚠️ That token was not accepted. Please try again.", nil); sendErr != nil {
			log.Warn().Err(sendErr).Msg("Failed to send token reply")
		}
		return
	}
	if _, err := r.client.SendText(ctx, tenant, chatID, "✅ Token received.", nil); err != nil {
		log.Warn().Err(err).Msg("Failed to send token reply")
	}
}

// handleCommand routes built-in commands and falls back to the action
// store via the cmd:<name> key. Unknown commands are no-ops.
func (r *Router) handleCommand(ctx context.Context, tenant *model.Tenant, user *model.User, msg *tgbotapi.Message, name, args string) {
	chatID := msg.Chat.ID

	if r.isOperator(ctx, tenant, user.UserID) {
		if handled := r.handleAdminCommand(ctx, tenant, user, msg, name, args); handled {
			return
		}
	}

	switch name {
	case "balance":
		text, kb := r.renderContent(ctx, tenant, user,
			"💰 Balance: <b>[balance]</b>\nShares: <b>[share]</b>\nYour link:\n[link]")
		if _, err := r.client.SendText(ctx, tenant, chatID, text, kb); err != nil {
			log.Warn().Err(err).Msg("Failed to send balance")
		}
		return
	}

	// Operator-defined command content.
	action, err := r.actions.Get(ctx, tenant.ID, "cmd:"+name)
	if err != nil {
		if !errors.Is(err, repository.ErrActionNotFound) {
			log.Error().Err(err).Str("command", name).Msg("Failed to look up command action")
		}
		return
	}

	if !r.ensureAccess(ctx, tenant, user, chatID) {
		return
	}

	if action.DelaySeconds > 0 {
		r.deliverDeferredCommand(ctx, tenant, user, chatID, action)
		return
	}
	if _, err := r.sendActionContent(ctx, tenant, user, chatID, action); err != nil {
		log.Warn().Err(err).Str("key", action.Key).Msg("Failed to send command content")
	}
}

// deliverDeferredCommand sends the loading placeholder and schedules the
// real content to replace it.
func (r *Router) deliverDeferredCommand(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64, action *model.Action) {
	msgID, err := r.client.SendText(ctx, tenant, chatID, loadingText(tenant), nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send loading placeholder")
		return
	}
	r.scheduleAction(ctx, tenant, chatID, user.UserID, msgID, action.Key, action.DelaySeconds)
}
