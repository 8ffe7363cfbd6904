package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/scheduler"
)

// ExecuteTask delivers a deferred action when its timer fires. Tenant
// config, user row, gates, and the action body are all re-read at fire
// time so edits made during the delay take effect.
func (r *Router) ExecuteTask(ctx context.Context, task scheduler.Task) error {
	tenantID, err := uuid.Parse(task.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", task.TenantID, err)
	}
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant for deferred task: %w", err)
	}
	user, err := r.users.GetByID(ctx, tenant.ID, task.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user for deferred task: %w", err)
	}

	// Access may have been revoked while the task sat in the queue.
	if !r.ensureAccess(ctx, tenant, user, task.ChatID) {
		log.Info().
			Str("tenant_id", task.TenantID).
			Int64("user_id", task.UserID).
			Str("key", task.Key).
			Msg("Deferred task dropped: access gate closed")
		return nil
	}

	key := actionKey(task.Key)
	action, err := r.actions.Get(ctx, tenant.ID, key)
	if err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			// The key may name a result-feature provider instead.
			isProvider, provErr := r.features.IsProvider(ctx, tenant.ID, key)
			if provErr != nil {
				return fmt.Errorf("failed to resolve deferred key %q: %w", key, provErr)
			}
			if isProvider {
				r.applyFeatureResult(ctx, tenant, user, task.ChatID, task.MessageID, key)
				return nil
			}
			log.Warn().
				Str("tenant_id", task.TenantID).
				Str("key", key).
				Msg("Deferred task dropped: key no longer defined")
			return nil
		}
		return fmt.Errorf("failed to load deferred action: %w", err)
	}

	if task.MessageID > 0 {
		if err := r.editActionContent(ctx, tenant, user, task.ChatID, task.MessageID, action); err != nil {
			return fmt.Errorf("failed to apply deferred action %q: %w", key, err)
		}
		return nil
	}
	if _, err := r.sendActionContent(ctx, tenant, user, task.ChatID, action); err != nil {
		return fmt.Errorf("failed to send deferred action %q: %w", key, err)
	}
	return nil
}
