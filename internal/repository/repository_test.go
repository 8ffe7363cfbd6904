// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, &db.Pool{Pool: pool}))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

func createTestTenant(t *testing.T, pool *pgxpool.Pool) *model.Tenant {
	t.Helper()
	tenant, err := NewTenantRepository(pool).Create(
		context.Background(), "123:test-token-"+t.Name(), "testbot", "secret-"+t.Name(), 999001)
	require.NoError(t, err)
	return tenant
}

func setBalance(t *testing.T, pool *pgxpool.Pool, tenant *model.Tenant, userID int64, balance string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`UPDATE users SET balance = $3 WHERE tenant_id = $1 AND user_id = $2`,
		tenant.ID, userID, balance)
	require.NoError(t, err)
}

// ============================================================================
// UserRepository
// ============================================================================

func TestUserUpsertCreatesAndRefreshes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	uname := "alice"
	user, isNew, err := repo.Upsert(ctx, tenant.ID, 100, &uname, "Alice", "100001", nil, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "Alice", user.FirstName)
	assert.Equal(t, "100001", user.MemberID)
	assert.True(t, user.Balance.IsZero())

	// Second contact refreshes the profile, keeps the member id.
	newName := "alice_renamed"
	user, isNew, err = repo.Upsert(ctx, tenant.ID, 100, &newName, "Alice R", "555555", nil, decimal.Zero)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "Alice R", user.FirstName)
	assert.Equal(t, "100001", user.MemberID, "member id must survive re-registration")
}

func TestUserUpsertReferralCreditedExactlyOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()
	credit := decimal.RequireFromString("0.30")

	_, _, err := repo.Upsert(ctx, tenant.ID, 1, nil, "Upline", "111111", nil, credit)
	require.NoError(t, err)

	// Duplicate first events racing for the same new user: the credit must
	// land exactly once no matter how many arrive.
	upline := int64(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Upsert(ctx, tenant.ID, 2, nil, "Referee", "222222", &upline, credit)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	uplineUser, err := repo.GetByID(ctx, tenant.ID, 1)
	require.NoError(t, err)
	assert.True(t, uplineUser.Balance.Equal(credit),
		"expected exactly one credit, got balance %s", uplineUser.Balance)
	assert.Equal(t, int64(1), uplineUser.SharedCount)

	referee, err := repo.GetByID(ctx, tenant.ID, 2)
	require.NoError(t, err)
	assert.True(t, referee.CreditedUpline)
}

func TestUserUpsertSelfReferralIgnored(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	self := int64(7)
	user, _, err := repo.Upsert(ctx, tenant.ID, 7, nil, "Selfie", "777777", &self, decimal.RequireFromString("0.30"))
	require.NoError(t, err)
	assert.True(t, user.Balance.IsZero())
	assert.Nil(t, user.UplineUserID)
	assert.False(t, user.CreditedUpline)
}

func TestUserPhoneUniquePerTenant(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	_, _, err := repo.Upsert(ctx, tenant.ID, 10, nil, "First", "100010", nil, decimal.Zero)
	require.NoError(t, err)
	_, _, err = repo.Upsert(ctx, tenant.ID, 11, nil, "Second", "100011", nil, decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, repo.SetPhone(ctx, tenant.ID, 10, "+60123456789"))
	assert.ErrorIs(t, repo.SetPhone(ctx, tenant.ID, 11, "+60123456789"), ErrPhoneTaken)

	// Releasing the number lets the other account verify with it.
	require.NoError(t, repo.ClearPhone(ctx, tenant.ID, 10))
	require.NoError(t, repo.SetPhone(ctx, tenant.ID, 11, "+60123456789"))

	second, err := repo.GetByID(ctx, tenant.ID, 11)
	require.NoError(t, err)
	assert.True(t, second.Verified)
}

// ============================================================================
// WithdrawalRepository
// ============================================================================

func TestWithdrawalApproveDebitsOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	withdrawals := NewWithdrawalRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	_, _, err := users.Upsert(ctx, tenant.ID, 20, nil, "Payee", "100020", nil, decimal.Zero)
	require.NoError(t, err)
	setBalance(t, pool, tenant, 20, "100.00")

	w, err := withdrawals.Create(ctx, tenant.ID, 20, "100 Maybank 1234567890")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, w.Status)

	amount := decimal.RequireFromString("100")
	res, err := withdrawals.Approve(ctx, w.ID, amount, 999001)
	require.NoError(t, err)
	assert.Equal(t, "100.00", res.BalanceBefore.StringFixed(2))
	assert.Equal(t, "0.00", res.BalanceAfter.StringFixed(2))
	assert.Equal(t, model.WithdrawalApproved, res.Withdrawal.Status)

	// A second terminal transition must conflict, with no further debit.
	_, err = withdrawals.Approve(ctx, w.ID, amount, 999001)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = withdrawals.Reject(ctx, w.ID, 999001)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	payee, err := users.GetByID(ctx, tenant.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, "0.00", payee.Balance.StringFixed(2))
}

func TestWithdrawalApproveInsufficientBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	withdrawals := NewWithdrawalRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	_, _, err := users.Upsert(ctx, tenant.ID, 21, nil, "Broke", "100021", nil, decimal.Zero)
	require.NoError(t, err)
	setBalance(t, pool, tenant, 21, "40.00")

	w, err := withdrawals.Create(ctx, tenant.ID, 21, "50 CIMB 999")
	require.NoError(t, err)

	_, err = withdrawals.Approve(ctx, w.ID, decimal.RequireFromString("50"), 999001)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// The request survives untouched for a later decision.
	reloaded, err := withdrawals.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, reloaded.Status)

	user, err := users.GetByID(ctx, tenant.ID, 21)
	require.NoError(t, err)
	assert.Equal(t, "40.00", user.Balance.StringFixed(2))
}

func TestWithdrawalRejectKeepsBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	withdrawals := NewWithdrawalRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	_, _, err := users.Upsert(ctx, tenant.ID, 22, nil, "Rejected", "100022", nil, decimal.Zero)
	require.NoError(t, err)
	setBalance(t, pool, tenant, 22, "75.50")

	w, err := withdrawals.Create(ctx, tenant.ID, 22, "75.50 Bank Islam 123")
	require.NoError(t, err)

	rejected, err := withdrawals.Reject(ctx, w.ID, 999001)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalRejected, rejected.Status)

	user, err := users.GetByID(ctx, tenant.ID, 22)
	require.NoError(t, err)
	assert.Equal(t, "75.50", user.Balance.StringFixed(2))
}

func TestWithdrawalConcurrentApproveSingleWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	withdrawals := NewWithdrawalRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	_, _, err := users.Upsert(ctx, tenant.ID, 23, nil, "Raced", "100023", nil, decimal.Zero)
	require.NoError(t, err)
	setBalance(t, pool, tenant, 23, "60.00")

	w, err := withdrawals.Create(ctx, tenant.ID, 23, "60 Maybank 1")
	require.NoError(t, err)

	amount := decimal.RequireFromString("60")
	var successes int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := withdrawals.Approve(ctx, w.ID, amount, 999001); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes, "exactly one approval may win")

	user, err := users.GetByID(ctx, tenant.ID, 23)
	require.NoError(t, err)
	assert.Equal(t, "0.00", user.Balance.StringFixed(2))
}

// ============================================================================
// QuotaRepository
// ============================================================================

func TestQuotaNeverExceedsLimitUnderConcurrency(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	limit := 5
	require.NoError(t, NewTenantRepository(pool).SetScanLimit(ctx, tenant.ID, &limit))
	tenant.ScanLimit = &limit

	var admitted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := quota.TryConsumeDaily(ctx, tenant, 30)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), admitted)

	stats, err := quota.GetStats(ctx, tenant, 30)
	require.NoError(t, err)
	assert.Equal(t, limit, stats.Used)
	require.NotNil(t, stats.Remaining)
	assert.Equal(t, 0, *stats.Remaining)
}

func TestQuotaOverrideBeatsTenantDefault(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	limit := 10
	tenant.ScanLimit = &limit
	require.NoError(t, quota.SetOverride(ctx, tenant.ID, 31, 2))

	for i := 0; i < 2; i++ {
		ok, _, err := quota.TryConsumeDaily(ctx, tenant, 31)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, stats, err := quota.TryConsumeDaily(ctx, tenant, 31)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, stats.Used)

	// Clearing the override restores the looser tenant default.
	require.NoError(t, quota.ClearOverride(ctx, tenant.ID, 31))
	ok, _, err = quota.TryConsumeDaily(ctx, tenant, 31)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuotaUnlimitedTenantAlwaysAdmits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ok, stats, err := quota.TryConsumeDaily(ctx, tenant, 32)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, stats.Limit)
	}
}

func TestQuotaResetToday(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	limit := 1
	tenant.ScanLimit = &limit

	ok, _, err := quota.TryConsumeDaily(ctx, tenant, 33)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _, err = quota.TryConsumeDaily(ctx, tenant, 33)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, quota.ResetToday(ctx, tenant.ID, 33))
	ok, _, err = quota.TryConsumeDaily(ctx, tenant, 33)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldownSecondAttemptDenied(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	remaining, err := quota.CheckCooldown(ctx, tenant.ID, 40, "scan_provider1", 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining, "first use passes")

	remaining, err = quota.CheckCooldown(ctx, tenant.ID, 40, "scan_provider1", 5*time.Second)
	require.NoError(t, err)
	assert.Positive(t, remaining, "second use inside the window reports time left")

	// A different feature key cools down independently.
	remaining, err = quota.CheckCooldown(ctx, tenant.ID, 40, "scan_provider2", 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestCooldownExpiresAfterWindow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	quota := NewQuotaRepository(pool, time.UTC)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	remaining, err := quota.CheckCooldown(ctx, tenant.ID, 41, "menu", time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	time.Sleep(1100 * time.Millisecond)

	remaining, err = quota.CheckCooldown(ctx, tenant.ID, 41, "menu", time.Second)
	require.NoError(t, err)
	assert.Zero(t, remaining, "window elapsed, use admitted again")
}

// ============================================================================
// SessionRepository
// ============================================================================

func TestSessionReplaceAndClear(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	sessions := NewSessionRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	state, err := sessions.Get(ctx, tenant.ID, 50)
	require.NoError(t, err)
	assert.Nil(t, state, "no session yet")

	require.NoError(t, sessions.Set(ctx, tenant.ID, 50, model.AwaitWithdrawInput{PromptMessageID: 42}))
	state, err = sessions.Get(ctx, tenant.ID, 50)
	require.NoError(t, err)
	wd, ok := state.(model.AwaitWithdrawInput)
	require.True(t, ok)
	assert.Equal(t, 42, wd.PromptMessageID)

	// A user holds at most one session: the new state replaces the old.
	require.NoError(t, sessions.Set(ctx, tenant.ID, 50, model.AwaitExternalToken{RequestedAtUnix: 1700000000}))
	state, err = sessions.Get(ctx, tenant.ID, 50)
	require.NoError(t, err)
	_, ok = state.(model.AwaitExternalToken)
	assert.True(t, ok)

	require.NoError(t, sessions.Clear(ctx, tenant.ID, 50))
	state, err = sessions.Get(ctx, tenant.ID, 50)
	require.NoError(t, err)
	assert.Nil(t, state)
}

// ============================================================================
// ActionRepository
// ============================================================================

func TestActionUpsertRedefines(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	actions := NewActionRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	require.NoError(t, actions.Upsert(ctx, &model.Action{
		TenantID: tenant.ID, Key: "bonus", Type: model.ActionText, Body: "old body",
	}))

	fileID := "file-123"
	require.NoError(t, actions.Upsert(ctx, &model.Action{
		TenantID: tenant.ID, Key: "bonus", Type: model.ActionPhoto,
		Body: "new body", MediaFileID: &fileID, DelaySeconds: 9,
	}))

	a, err := actions.Get(ctx, tenant.ID, "bonus")
	require.NoError(t, err)
	assert.Equal(t, model.ActionPhoto, a.Type)
	assert.Equal(t, "new body", a.Body)
	assert.Equal(t, 9, a.DelaySeconds)

	require.NoError(t, actions.Delete(ctx, tenant.ID, "bonus"))
	_, err = actions.Get(ctx, tenant.ID, "bonus")
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.ErrorIs(t, actions.Delete(ctx, tenant.ID, "bonus"), ErrActionNotFound)
}

// ============================================================================
// AdminRepository
// ============================================================================

func TestAdminGrantExpiry(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	admins := NewAdminRepository(pool)
	tenant := createTestTenant(t, pool)
	ctx := context.Background()

	require.NoError(t, admins.Add(ctx, tenant.ID, 60, nil))
	ok, err := admins.IsAdmin(ctx, tenant.ID, 60)
	require.NoError(t, err)
	assert.True(t, ok)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, admins.Add(ctx, tenant.ID, 61, &past))
	ok, err = admins.IsAdmin(ctx, tenant.ID, 61)
	require.NoError(t, err)
	assert.False(t, ok, "expired grant no longer counts")

	require.NoError(t, admins.Remove(ctx, tenant.ID, 60))
	ok, err = admins.IsAdmin(ctx, tenant.ID, 60)
	require.NoError(t, err)
	assert.False(t, ok)
}
