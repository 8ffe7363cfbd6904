package markup

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-affiliate-bot/internal/model"
)

func testUser() *model.User {
	uname := "alice_w"
	return &model.User{
		UserID:      12345,
		Username:    &uname,
		FirstName:   "Alice",
		MemberID:    "482913",
		Balance:     decimal.RequireFromString("12.50"),
		SharedCount: 7,
	}
}

func testRenderer() *Renderer {
	return &Renderer{
		BotUsername: "examplebot",
		Rand:        rand.New(rand.NewSource(1)),
		Now:         func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) },
	}
}

func TestRenderPlaceholders(t *testing.T) {
	r := testRenderer()
	u := testUser()

	out := r.Render("Hi {firstname} ({username}, #{member_id}) balance=[balance] shares=[share] on {date}", u)

	assert.Equal(t, "Hi Alice (@alice_w, #482913) balance=RM12.50 shares=7 on 14/03/2025", out)
}

func TestRenderUsernameFallsBackToFirstName(t *testing.T) {
	r := testRenderer()
	u := testUser()
	u.Username = nil

	out := r.Render("{username}", u)
	assert.Equal(t, "Alice", out)
}

func TestRenderReferralLink(t *testing.T) {
	r := testRenderer()
	out := r.Render("Share: [link]", testUser())
	assert.Equal(t, "Share: https://t.me/examplebot?start=12345", out)

	r.BotUsername = ""
	out = r.Render("Share: [link]", testUser())
	assert.Equal(t, "Share:", strings.TrimSpace(out))
}

func TestRenderEscapesProfileValues(t *testing.T) {
	r := testRenderer()
	u := testUser()
	u.FirstName = "<b>Eve</b>"
	u.Username = nil

	out := r.Render("{firstname}", u)
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "&lt;b&gt;")
}

func TestRenderMarkdownSubset(t *testing.T) {
	r := testRenderer()

	out := r.Render("**bold** and __slanted__ and [site](example.com/x)", testUser())

	assert.Contains(t, out, "<b>bold</b>")
	assert.Contains(t, out, "<i>slanted</i>")
	assert.Contains(t, out, `<a href="https://example.com/x">site</a>`)
}

// TestRenderRandTokenBoundsProperty: every {rand:a-b} expansion stays in
// the inclusive range, for any range and any seed.
func TestRenderRandTokenBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.IntRange(0, 500).Draw(t, "lo")
		hi := rapid.IntRange(lo, lo+500).Draw(t, "hi")
		seed := rapid.Int64().Draw(t, "seed")

		r := testRenderer()
		r.Rand = rand.New(rand.NewSource(seed))

		tpl := "{rand:" + strconv.Itoa(lo) + "-" + strconv.Itoa(hi) + "}"
		out := r.Render(tpl, testUser())

		n, err := strconv.Atoi(out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, lo)
		assert.LessOrEqual(t, n, hi)
	})
}

func TestHasQuotaTokens(t *testing.T) {
	assert.True(t, HasQuotaTokens("left {remaining} today"))
	assert.True(t, HasQuotaTokens("{used}/{limit}"))
	assert.False(t, HasQuotaTokens("plain text {firstname}"))
}

func TestApplyQuotaTokens(t *testing.T) {
	limit := 10
	remaining := 3
	stats := model.QuotaStats{
		Used:      7,
		Limit:     &limit,
		Remaining: &remaining,
		ResetAt:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	out := ApplyQuotaTokens("{used}/{limit}, {remaining} left, resets {reset}", stats, time.UTC)
	assert.Equal(t, "7/10, 3 left, resets 15/03/2025 00:00", out)
}

func TestApplyQuotaTokensUnlimited(t *testing.T) {
	stats := model.QuotaStats{Used: 2, ResetAt: time.Now()}

	out := ApplyQuotaTokens("{used}/{limit} ({remaining})", stats, time.UTC)
	assert.Contains(t, out, "2/UNLIMITED")
	assert.Contains(t, out, "∞")
}
