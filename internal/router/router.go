// Package router classifies inbound events, drives the per-user session
// state machine, and dispatches to handlers. One Router instance serves
// every tenant; all per-request state lives on the stack or in the store.
package router

import (
	"context"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/scheduler"
	"telegram-affiliate-bot/internal/service"
	"telegram-affiliate-bot/internal/telegram"
)

// TokenReceiver accepts credentials collected by the AWAIT_EXTERNAL_TOKEN
// session state. Provisioning itself happens outside this process.
type TokenReceiver interface {
	ReceiveToken(ctx context.Context, tenant *model.Tenant, userID int64, token string) error
}

// Router wires every subsystem together for one inbound event at a time.
type Router struct {
	tenants  *repository.TenantRepository
	actions  *repository.ActionRepository
	sessions *repository.SessionRepository
	admins   *repository.AdminRepository
	users    *repository.UserRepository

	ledger    *service.LedgerService
	guard     *service.GuardService
	features  *service.FeatureService
	broadcast *service.BroadcastService

	client *telegram.Client
	sched  scheduler.Scheduler

	tokenReceiver TokenReceiver
	loc           *time.Location
	rand          *rand.Rand
}

// Deps bundles the router's collaborators.
type Deps struct {
	Tenants  *repository.TenantRepository
	Actions  *repository.ActionRepository
	Sessions *repository.SessionRepository
	Admins   *repository.AdminRepository
	Users    *repository.UserRepository

	Ledger    *service.LedgerService
	Guard     *service.GuardService
	Features  *service.FeatureService
	Broadcast *service.BroadcastService

	Client        *telegram.Client
	TokenReceiver TokenReceiver
	Location      *time.Location
}

// New creates a Router. The scheduler is attached afterwards via
// SetScheduler because the scheduler's executor is the router itself.
func New(d Deps) *Router {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Router{
		tenants:       d.Tenants,
		actions:       d.Actions,
		sessions:      d.Sessions,
		admins:        d.Admins,
		users:         d.Users,
		ledger:        d.Ledger,
		guard:         d.Guard,
		features:      d.Features,
		broadcast:     d.Broadcast,
		client:        d.Client,
		tokenReceiver: d.TokenReceiver,
		loc:           loc,
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetScheduler attaches the deferred-action scheduler.
func (r *Router) SetScheduler(s scheduler.Scheduler) { r.sched = s }

// HandleUpdate processes one inbound event for one tenant. Every error is
// contained here: a failed event is logged and dropped, never allowed to
// crash the process.
func (r *Router) HandleUpdate(ctx context.Context, tenant *model.Tenant, update *tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("tenant_id", tenant.ID.String()).
				Msg("Recovered from handler panic")
		}
	}()

	switch {
	case update.Message != nil:
		r.handleMessage(ctx, tenant, update.Message)
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, tenant, update.CallbackQuery)
	}
}

// renderer builds a markup renderer bound to this tenant.
func (r *Router) renderer(tenant *model.Tenant) *markup.Renderer {
	return &markup.Renderer{BotUsername: tenant.BotUsername, Loc: r.loc}
}

// renderContent renders a template into final text plus keyboard,
// resolving quota tokens lazily only when referenced.
func (r *Router) renderContent(ctx context.Context, tenant *model.Tenant, user *model.User, tpl string) (string, [][]markup.Button) {
	ren := r.renderer(tenant)
	out := ren.Render(tpl, user)

	if markup.HasQuotaTokens(out) {
		stats, err := r.guard.Stats(ctx, tenant, user.UserID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to resolve quota stats for template")
		} else {
			out = markup.ApplyQuotaTokens(out, stats, r.loc)
		}
	}

	shareQuery := ren.Render("Come make money! [link]", user)
	return markup.ParseButtons(out, shareQuery)
}

// sendActionContent delivers a rendered action as a fresh message.
func (r *Router) sendActionContent(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64, a *model.Action) (int, error) {
	text, kb := r.renderContent(ctx, tenant, user, a.Body)
	if a.Type != model.ActionText && a.MediaFileID != nil {
		return r.client.SendMedia(ctx, tenant, chatID, string(a.Type), *a.MediaFileID, text, kb)
	}
	return r.client.SendText(ctx, tenant, chatID, text, kb)
}

// editActionContent applies a rendered action onto an existing message.
// Media actions replace the media in place; text actions try a body edit
// and fall back to a caption edit when the target is a media message.
func (r *Router) editActionContent(ctx context.Context, tenant *model.Tenant, user *model.User, chatID int64, messageID int, a *model.Action) error {
	text, kb := r.renderContent(ctx, tenant, user, a.Body)
	if a.Type != model.ActionText && a.MediaFileID != nil {
		return r.client.EditMedia(ctx, tenant, chatID, messageID, string(a.Type), *a.MediaFileID, text, kb)
	}
	if err := r.client.EditText(ctx, tenant, chatID, messageID, text, kb); err != nil {
		return r.client.EditCaption(ctx, tenant, chatID, messageID, text, kb)
	}
	return nil
}

// loadingText resolves the transient "loading" body shown before a
// deferred result lands.
func loadingText(tenant *model.Tenant) string {
	if tenant.LoadingText != nil && *tenant.LoadingText != "" {
		return *tenant.LoadingText
	}
	return "⏳ Processing..."
}

// isOperator reports whether the user is the tenant owner or holds an
// admin grant.
func (r *Router) isOperator(ctx context.Context, tenant *model.Tenant, userID int64) bool {
	if userID == tenant.OwnerUserID {
		return true
	}
	ok, err := r.admins.IsAdmin(ctx, tenant.ID, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check admin grant")
		return false
	}
	return ok
}
