package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
)

// slotCommands maps operator commands to message-slot names.
var slotCommands = map[string]string{
	"setstart":     "start",
	"setcontact":   "contact",
	"setapprove":   "approval",
	"setreject":    "rejection",
	"setwdapprove": "withdrawal_approve",
	"setwdreject":  "withdrawal_reject",
	"setlimitmsg":  "scan_limit",
}

// handleAdminCommand executes operator commands. Returns false when the
// command name is not an operator command, so the caller can fall through
// to user handling.
func (r *Router) handleAdminCommand(ctx context.Context, tenant *model.Tenant, user *model.User, msg *tgbotapi.Message, name, args string) bool {
	chatID := msg.Chat.ID

	if slot, ok := slotCommands[name]; ok {
		r.cmdSetSlot(ctx, tenant, chatID, msg, slot)
		return true
	}

	switch name {
	case "setloading":
		r.cmdSetLoading(ctx, tenant, chatID, args)
	case "setwdask":
		r.cmdSetWithdrawAsk(ctx, tenant, chatID, msg)
	case "setcallback":
		r.cmdSetAction(ctx, tenant, chatID, msg, args, "")
	case "setcommand":
		r.cmdSetAction(ctx, tenant, chatID, msg, args, "cmd:")
	case "delaction":
		r.cmdDelAction(ctx, tenant, chatID, args)
	case "actions":
		r.cmdListActions(ctx, tenant, chatID)
	case "setaffiliate":
		r.cmdSetAffiliate(ctx, tenant, chatID, args)
	case "setminwd":
		r.cmdSetMinWithdraw(ctx, tenant, chatID, args)
	case "lock":
		r.cmdSetLocked(ctx, tenant, chatID, true)
	case "unlock":
		r.cmdSetLocked(ctx, tenant, chatID, false)
	case "manualapproval":
		r.cmdManualApproval(ctx, tenant, chatID, args)
	case "setadminchat":
		r.cmdSetAdminChat(ctx, tenant, chatID, args)
	case "setjoin":
		r.cmdSetJoin(ctx, tenant, chatID, args)
	case "addadmin":
		r.cmdAddAdmin(ctx, tenant, chatID, msg, args)
	case "deladmin":
		r.cmdDelAdmin(ctx, tenant, chatID, msg, args)
	case "admins":
		r.cmdListAdmins(ctx, tenant, chatID)
	case "stats":
		r.cmdStats(ctx, tenant, chatID)
	case "broadcast":
		r.cmdBroadcast(ctx, tenant, chatID, msg)
	case "scanlimit":
		r.cmdScanLimit(ctx, tenant, chatID, args)
	case "scanlimituser":
		r.cmdScanLimitUser(ctx, tenant, chatID, msg, args)
	case "scanreset":
		r.cmdScanReset(ctx, tenant, chatID, msg, args)
	case "clearphone":
		r.cmdClearPhone(ctx, tenant, chatID, msg, args)
	case "setscanmedia":
		r.cmdSetScanMedia(ctx, tenant, chatID, msg, args)
	case "addgames":
		r.cmdAddGames(ctx, tenant, chatID, msg, args)
	case "cleargames":
		r.cmdClearGames(ctx, tenant, chatID, args)
	default:
		return false
	}
	return true
}

func (r *Router) reply(ctx context.Context, tenant *model.Tenant, chatID int64, text string) {
	if _, err := r.client.SendText(ctx, tenant, chatID, text, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to send operator reply")
	}
}

// replyContent extracts the stored form of a replied-to message: HTML body
// with entities applied, plus media reference if any.
func replyContent(reply *tgbotapi.Message) (body string, actionType model.ActionType, fileID *string) {
	actionType = model.ActionText

	text := reply.Text
	entities := reply.Entities
	if text == "" {
		text = reply.Caption
		entities = reply.CaptionEntities
	}
	body = markup.EntitiesToHTML(text, convertEntities(entities))

	switch {
	case len(reply.Photo) > 0:
		actionType = model.ActionPhoto
		id := reply.Photo[len(reply.Photo)-1].FileID
		fileID = &id
	case reply.Video != nil:
		actionType = model.ActionVideo
		fileID = &reply.Video.FileID
	case reply.Animation != nil:
		actionType = model.ActionAnimation
		fileID = &reply.Animation.FileID
	case reply.Document != nil:
		actionType = model.ActionDocument
		fileID = &reply.Document.FileID
	}
	return body, actionType, fileID
}

func convertEntities(ents []tgbotapi.MessageEntity) []markup.Entity {
	out := make([]markup.Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, markup.Entity{Type: e.Type, Offset: e.Offset, Length: e.Length, URL: e.URL})
	}
	return out
}

// messageHTML rebuilds a received message's HTML body from its entity
// spans; the platform delivers text with formatting stripped, so editing
// the plain text back would lose the original markup.
func messageHTML(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return markup.EntitiesToHTML(msg.Text, convertEntities(msg.Entities))
	}
	return markup.EntitiesToHTML(msg.Caption, convertEntities(msg.CaptionEntities))
}

func (r *Router) cmdSetSlot(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, slot string) {
	if msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the message you want to store.")
		return
	}
	body, actionType, fileID := replyContent(msg.ReplyToMessage)
	if body == "" && fileID == nil {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no content.")
		return
	}

	media := model.MediaRef{}
	if fileID != nil {
		t := string(actionType)
		media = model.MediaRef{Type: &t, FileID: fileID}
	}
	if err := r.tenants.SetMessageSlot(ctx, tenant.ID, slot, body, media); err != nil {
		log.Error().Err(err).Str("slot", slot).Msg("Failed to store message slot")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Saved.")
}

func (r *Router) cmdSetLoading(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	if args == "" {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /setloading <text>")
		return
	}
	if err := r.tenants.SetLoadingText(ctx, tenant.ID, args); err != nil {
		log.Error().Err(err).Msg("Failed to set loading text")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Loading text updated.")
}

func (r *Router) cmdSetWithdrawAsk(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message) {
	if msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the prompt message you want to store.")
		return
	}
	body, _, _ := replyContent(msg.ReplyToMessage)
	if body == "" {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no text.")
		return
	}
	if err := r.tenants.SetWithdrawAskText(ctx, tenant.ID, body); err != nil {
		log.Error().Err(err).Msg("Failed to set withdrawal prompt")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Withdrawal prompt updated.")
}

// cmdSetAction stores the replied message under a callback or command key.
// Args: <key> [delay=N]. keyPrefix is "cmd:" for command actions.
func (r *Router) cmdSetAction(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args, keyPrefix string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: reply to a message with /setcallback <key> [delay=N]")
		return
	}
	if msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the message you want to store.")
		return
	}

	key := strings.ToLower(fields[0])
	if keyPrefix == "" {
		key = actionKey(key)
	}
	delay := 0
	for _, f := range fields[1:] {
		if v, ok := strings.CutPrefix(f, "delay="); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				delay = n
			}
		}
	}

	body, actionType, fileID := replyContent(msg.ReplyToMessage)
	if body == "" && fileID == nil {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no content.")
		return
	}

	a := &model.Action{
		TenantID:     tenant.ID,
		Key:          keyPrefix + key,
		Type:         actionType,
		Body:         body,
		MediaFileID:  fileID,
		DelaySeconds: delay,
	}
	if err := r.actions.Upsert(ctx, a); err != nil {
		log.Error().Err(err).Str("key", a.Key).Msg("Failed to store action")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Saved <code>%s</code> (delay %ds).", a.Key, delay))
}

func (r *Router) cmdDelAction(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	key := strings.ToLower(strings.TrimSpace(args))
	if key == "" {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /delaction <key>")
		return
	}
	if !strings.HasPrefix(key, "cmd:") {
		key = actionKey(key)
	}
	if err := r.actions.Delete(ctx, tenant.ID, key); err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			r.reply(ctx, tenant, chatID, "⚠️ No such key.")
			return
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to delete action")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to delete, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Deleted.")
}

func (r *Router) cmdListActions(ctx context.Context, tenant *model.Tenant, chatID int64) {
	keys, err := r.actions.ListKeys(ctx, tenant.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list actions")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to list, try again.")
		return
	}
	if len(keys) == 0 {
		r.reply(ctx, tenant, chatID, "No actions defined yet.")
		return
	}
	var b strings.Builder
	b.WriteString("<b>Defined actions</b>\n")
	for _, k := range keys {
		b.WriteString("• <code>" + k + "</code>\n")
	}
	r.reply(ctx, tenant, chatID, b.String())
}

func (r *Router) cmdSetAffiliate(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	amt, err := decimal.NewFromString(strings.TrimSpace(args))
	if err != nil || amt.Sign() <= 0 {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /setaffiliate <amount>, e.g. /setaffiliate 0.50")
		return
	}
	if err := r.tenants.SetAffiliateAmount(ctx, tenant.ID, &amt); err != nil {
		log.Error().Err(err).Msg("Failed to set affiliate amount")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Referral credit set to RM"+amt.StringFixed(2)+".")
}

func (r *Router) cmdSetMinWithdraw(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	amt, err := decimal.NewFromString(strings.TrimSpace(args))
	if err != nil || amt.Sign() <= 0 {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /setminwd <amount>, e.g. /setminwd 30")
		return
	}
	if err := r.tenants.SetMinWithdraw(ctx, tenant.ID, &amt); err != nil {
		log.Error().Err(err).Msg("Failed to set minimum withdrawal")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Minimum withdrawal set to RM"+amt.StringFixed(2)+".")
}

func (r *Router) cmdSetLocked(ctx context.Context, tenant *model.Tenant, chatID int64, locked bool) {
	if err := r.tenants.SetLocked(ctx, tenant.ID, locked); err != nil {
		log.Error().Err(err).Msg("Failed to toggle lock")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	if locked {
		r.reply(ctx, tenant, chatID, "🔒 Bot locked for regular users.")
		return
	}
	r.reply(ctx, tenant, chatID, "🔓 Bot unlocked.")
}

func (r *Router) cmdManualApproval(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	var on bool
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
		on = false
	default:
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /manualapproval on|off")
		return
	}
	if err := r.tenants.SetManualApproval(ctx, tenant.ID, on); err != nil {
		log.Error().Err(err).Msg("Failed to toggle manual approval")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	if on {
		r.reply(ctx, tenant, chatID, "✅ Manual approval is ON: new members need operator approval.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Manual approval is OFF.")
}

// cmdSetAdminChat routes operator notifications to the current chat, or
// clears the routing with "off".
func (r *Router) cmdSetAdminChat(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	target := chatID
	if strings.EqualFold(strings.TrimSpace(args), "off") {
		target = 0
	}
	if err := r.tenants.SetAdminChat(ctx, tenant.ID, target); err != nil {
		log.Error().Err(err).Msg("Failed to set admin chat")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	if target == 0 {
		r.reply(ctx, tenant, chatID, "✅ Notifications go to the owner's DM.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Notifications will arrive in this chat.")
}

func (r *Router) cmdSetJoin(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 1 && strings.EqualFold(fields[0], "off") {
		fields = nil
	}
	if err := r.tenants.SetJoinTargets(ctx, tenant.ID, fields); err != nil {
		log.Error().Err(err).Msg("Failed to set join targets")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	if len(fields) == 0 {
		r.reply(ctx, tenant, chatID, "✅ Join gate disabled.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Join gate set: %s", strings.Join(fields, ", ")))
}

// resolveTarget finds the user a moderation command addresses: the
// replied-to sender, an @username, or a numeric id.
func (r *Router) resolveTarget(ctx context.Context, tenant *model.Tenant, msg *tgbotapi.Message, arg string) (int64, error) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID, nil
	}
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, repository.ErrUserNotFound
	}
	if uname, ok := strings.CutPrefix(arg, "@"); ok {
		return r.users.FindIDByUsername(ctx, tenant.ID, uname)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, repository.ErrUserNotFound
	}
	return id, nil
}

func (r *Router) cmdAddAdmin(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	fields := strings.Fields(args)
	targetArg := ""
	if msg.ReplyToMessage == nil && len(fields) > 0 {
		targetArg = fields[0]
		fields = fields[1:]
	}
	targetID, err := r.resolveTarget(ctx, tenant, msg, targetArg)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the user or pass @username / id.")
		return
	}

	// Optional trailing day count makes the grant expire.
	var expiresAt *time.Time
	for _, f := range fields {
		if days, err := strconv.Atoi(f); err == nil && days > 0 {
			t := time.Now().AddDate(0, 0, days)
			expiresAt = &t
		}
	}

	if err := r.admins.Add(ctx, tenant.ID, targetID, expiresAt); err != nil {
		log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to add admin")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	if expiresAt != nil {
		r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Admin granted until %s.", expiresAt.Format("02/01/2006")))
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Admin granted.")
}

func (r *Router) cmdDelAdmin(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	targetID, err := r.resolveTarget(ctx, tenant, msg, args)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the user or pass @username / id.")
		return
	}
	if err := r.admins.Remove(ctx, tenant.ID, targetID); err != nil {
		log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to remove admin")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to remove, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Admin removed.")
}

func (r *Router) cmdListAdmins(ctx context.Context, tenant *model.Tenant, chatID int64) {
	admins, err := r.admins.List(ctx, tenant.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list admins")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to list, try again.")
		return
	}
	var b strings.Builder
	b.WriteString("<b>Admins</b>\n")
	fmt.Fprintf(&b, "• <code>%d</code> (owner)\n", tenant.OwnerUserID)
	for _, a := range admins {
		if a.ExpiresAt != nil {
			fmt.Fprintf(&b, "• <code>%d</code> until %s\n", a.UserID, a.ExpiresAt.Format("02/01/2006"))
		} else {
			fmt.Fprintf(&b, "• <code>%d</code>\n", a.UserID)
		}
	}
	r.reply(ctx, tenant, chatID, b.String())
}

func (r *Router) cmdStats(ctx context.Context, tenant *model.Tenant, chatID int64) {
	stats, err := r.users.CountStats(ctx, tenant.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count users")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to load stats, try again.")
		return
	}
	pending, err := r.ledger.PendingWithdrawals(ctx, tenant.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending withdrawals")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to load stats, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf(
		"📊 <b>Stats</b>\nUsers: %d\nVerified: %d\nPremium: %d\nPending withdrawals: %d",
		stats.Total, stats.Verified, stats.Premium, len(pending)))
}

func (r *Router) cmdBroadcast(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message) {
	if msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the message you want to broadcast.")
		return
	}
	body, actionType, fileID := replyContent(msg.ReplyToMessage)
	if body == "" && fileID == nil {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no content.")
		return
	}

	media := model.MediaRef{}
	if fileID != nil {
		t := string(actionType)
		media = model.MediaRef{Type: &t, FileID: fileID}
	}
	n, err := r.broadcast.Broadcast(ctx, tenant, body, media)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start broadcast")
		r.reply(ctx, tenant, chatID, "⚠️ Broadcast failed to start, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("📣 Broadcasting to %d users.", n))
}

func (r *Router) cmdScanLimit(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	arg := strings.ToLower(strings.TrimSpace(args))
	if arg == "off" || arg == "0" {
		if err := r.tenants.SetScanLimit(ctx, tenant.ID, nil); err != nil {
			log.Error().Err(err).Msg("Failed to clear scan limit")
			r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
			return
		}
		r.reply(ctx, tenant, chatID, "✅ Daily limit removed (unlimited).")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /scanlimit <n> or /scanlimit off")
		return
	}
	if err := r.tenants.SetScanLimit(ctx, tenant.ID, &n); err != nil {
		log.Error().Err(err).Msg("Failed to set scan limit")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Daily limit set to %d per user.", n))
}

func (r *Router) cmdScanLimitUser(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /scanlimituser <@user|id> <n|off>")
		return
	}
	limitArg := fields[len(fields)-1]
	targetArg := ""
	if len(fields) > 1 {
		targetArg = fields[0]
	}
	targetID, err := r.resolveTarget(ctx, tenant, msg, targetArg)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the user or pass @username / id.")
		return
	}

	if strings.EqualFold(limitArg, "off") {
		if err := r.guard.ClearUserLimit(ctx, tenant.ID, targetID); err != nil {
			log.Error().Err(err).Msg("Failed to clear user limit")
			r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
			return
		}
		r.reply(ctx, tenant, chatID, "✅ User now follows the tenant default.")
		return
	}
	n, err := strconv.Atoi(limitArg)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /scanlimituser <@user|id> <n|off>")
		return
	}
	if err := r.guard.SetUserLimit(ctx, tenant.ID, targetID, n); err != nil {
		log.Error().Err(err).Msg("Failed to set user limit")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Daily limit for <code>%d</code> set to %d.", targetID, n))
}

func (r *Router) cmdScanReset(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	if strings.EqualFold(strings.TrimSpace(args), "all") {
		if err := r.guard.ResetTodayAll(ctx, tenant.ID); err != nil {
			log.Error().Err(err).Msg("Failed to reset usage")
			r.reply(ctx, tenant, chatID, "⚠️ Failed to reset, try again.")
			return
		}
		r.reply(ctx, tenant, chatID, "✅ Today's usage reset for everyone.")
		return
	}

	targetID, err := r.resolveTarget(ctx, tenant, msg, args)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /scanreset <@user|id> or /scanreset all")
		return
	}
	if err := r.guard.ResetToday(ctx, tenant.ID, targetID); err != nil {
		log.Error().Err(err).Msg("Failed to reset usage")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to reset, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Today's usage reset for <code>%d</code>.", targetID))
}

// cmdClearPhone releases a phone number so the account can verify again.
func (r *Router) cmdClearPhone(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	targetID, err := r.resolveTarget(ctx, tenant, msg, args)
	if err != nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the user or pass @username / id.")
		return
	}
	if err := r.users.ClearPhone(ctx, tenant.ID, targetID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			r.reply(ctx, tenant, chatID, "⚠️ No such user.")
			return
		}
		log.Error().Err(err).Msg("Failed to clear phone")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to clear, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, "✅ Phone number released.")
}

func (r *Router) cmdSetScanMedia(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	provider := strings.ToLower(strings.TrimSpace(args))
	if provider == "" {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: reply to a photo/video with /setscanmedia <provider>")
		return
	}
	if msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Reply to the media you want to store.")
		return
	}
	_, actionType, fileID := replyContent(msg.ReplyToMessage)
	if fileID == nil {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no media.")
		return
	}
	if err := r.features.SetMedia(ctx, tenant.ID, provider, string(actionType), *fileID); err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Failed to store provider media")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Media saved for <code>%s</code>.", provider))
}

// cmdAddGames reads one game name per line from the replied message.
func (r *Router) cmdAddGames(ctx context.Context, tenant *model.Tenant, chatID int64, msg *tgbotapi.Message, args string) {
	provider := strings.ToLower(strings.TrimSpace(args))
	if provider == "" || msg.ReplyToMessage == nil {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: reply to a list of names with /addgames <provider>")
		return
	}
	text := msg.ReplyToMessage.Text
	if text == "" {
		text = msg.ReplyToMessage.Caption
	}

	var names []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		r.reply(ctx, tenant, chatID, "⚠️ The replied message has no names.")
		return
	}
	if err := r.features.AddGames(ctx, tenant.ID, provider, names); err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Failed to add games")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to save, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Added %d games to <code>%s</code>.", len(names), provider))
}

func (r *Router) cmdClearGames(ctx context.Context, tenant *model.Tenant, chatID int64, args string) {
	provider := strings.ToLower(strings.TrimSpace(args))
	if provider == "" {
		r.reply(ctx, tenant, chatID, "⚠️ Usage: /cleargames <provider>")
		return
	}
	if err := r.features.ClearGames(ctx, tenant.ID, provider); err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Failed to clear games")
		r.reply(ctx, tenant, chatID, "⚠️ Failed to clear, try again.")
		return
	}
	r.reply(ctx, tenant, chatID, fmt.Sprintf("✅ Game list cleared for <code>%s</code>.", provider))
}
