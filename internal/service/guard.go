package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
)

// GuardService fronts the quota/cooldown counters with application
// defaults. All admission decisions delegate to single atomic statements
// in the repository.
type GuardService struct {
	quota    *repository.QuotaRepository
	cooldown time.Duration
}

// NewGuardService creates a new GuardService instance.
func NewGuardService(quota *repository.QuotaRepository, cooldown time.Duration) *GuardService {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &GuardService{quota: quota, cooldown: cooldown}
}

// TryConsumeDaily admits one use of the daily-limited feature class.
// Unlimited tenants always pass with zero usage pressure.
func (s *GuardService) TryConsumeDaily(ctx context.Context, tenant *model.Tenant, userID int64) (bool, model.QuotaStats, error) {
	return s.quota.TryConsumeDaily(ctx, tenant, userID)
}

// Stats reads the usage picture without consuming.
func (s *GuardService) Stats(ctx context.Context, tenant *model.Tenant, userID int64) (model.QuotaStats, error) {
	return s.quota.GetStats(ctx, tenant, userID)
}

// CheckCooldown returns 0 when the feature may be used now (recording the
// use), otherwise the seconds remaining.
func (s *GuardService) CheckCooldown(ctx context.Context, tenantID uuid.UUID, userID int64, feature string) (int, error) {
	return s.quota.CheckCooldown(ctx, tenantID, userID, feature, s.cooldown)
}

// SetUserLimit overrides the daily limit for one user.
func (s *GuardService) SetUserLimit(ctx context.Context, tenantID uuid.UUID, userID int64, limit int) error {
	return s.quota.SetOverride(ctx, tenantID, userID, limit)
}

// ClearUserLimit restores the tenant default for one user.
func (s *GuardService) ClearUserLimit(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	return s.quota.ClearOverride(ctx, tenantID, userID)
}

// ResetToday clears today's usage for one user.
func (s *GuardService) ResetToday(ctx context.Context, tenantID uuid.UUID, userID int64) error {
	return s.quota.ResetToday(ctx, tenantID, userID)
}

// ResetTodayAll clears today's usage for every user of a tenant.
func (s *GuardService) ResetTodayAll(ctx context.Context, tenantID uuid.UUID) error {
	return s.quota.ResetTodayAll(ctx, tenantID)
}
