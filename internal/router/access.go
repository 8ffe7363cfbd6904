package router

import (
	"context"

	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
)

// ensureAccess runs the access gates in order: tenant lock, join gate,
// contact verification, manual premium approval. Operators bypass every
// gate. Returns false after sending the appropriate gate message.
func (r *Router) ensureAccess(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64) bool {
	if r.isOperator(ctx, tenant, user.UserID) {
		return true
	}

	if tenant.Locked {
		if _, err := r.client.SendText(ctx, tenant, chatID,
			"🔒 This bot is temporarily unavailable. Please check back later.", nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send lock notice")
		}
		return false
	}

	if !r.passesJoinGate(ctx, tenant, user.UserID) {
		r.sendJoinPrompt(ctx, tenant, chatID)
		return false
	}

	if tenant.ManualApproval && !user.Premium {
		if !user.Verified {
			r.sendContactPrompt(ctx, tenant, user, chatID)
		} else {
			if _, err := r.client.SendText(ctx, tenant, chatID,
				"⏳ Your access is awaiting approval. You will be notified shortly.", nil); err != nil {
				log.Warn().Err(err).Msg("Failed to send pending-approval notice")
			}
		}
		return false
	}

	return true
}

// passesJoinGate checks membership of every join target. An empty target
// list passes.
func (r *Router) passesJoinGate(ctx context.Context, tenant *model.Tenant, userID int64) bool {
	for _, target := range tenant.JoinTargets {
		if !r.client.IsChatMember(ctx, tenant, target, userID) {
			return false
		}
	}
	return true
}

// sendJoinPrompt lists the join targets with a recheck button.
func (r *Router) sendJoinPrompt(ctx context.Context, tenant *model.Tenant, chatID int64) {
	var rows [][]markup.Button
	for _, target := range tenant.JoinTargets {
		rows = append(rows, []markup.Button{{
			Text: "📢 " + target,
			URL:  "https://t.me/" + trimAt(target),
		}})
	}
	rows = append(rows, []markup.Button{{Text: "🔁 I've Joined", CallbackData: "gate:recheck"}})

	if _, err := r.client.SendText(ctx, tenant, chatID,
		"🚪 Please join the channels below first, then tap the button.", rows); err != nil {
		log.Warn().Err(err).Msg("Failed to send join prompt")
	}
}

// sendContactPrompt delivers the contact slot with a share-contact
// keyboard.
func (r *Router) sendContactPrompt(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64) {
	text := "📱 Please verify your account by sharing your phone number."
	if tenant.ContactText != nil && *tenant.ContactText != "" {
		text = r.renderer(tenant).Render(*tenant.ContactText, user)
	}
	if err := r.client.RequestContact(ctx, tenant, chatID, text, "📱 Share My Number"); err != nil {
		log.Warn().Err(err).Msg("Failed to send contact prompt")
	}
}

func trimAt(s string) string {
	if len(s) > 0 && s[0] == '@' {
		return s[1:]
	}
	return s
}
