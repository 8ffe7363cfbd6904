package service

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
)

// FeatureService renders the result-feature cards: a provider's media
// plus a randomized sample of its game list with percentage figures.
// Rendering is deterministic given the injected random source.
type FeatureService struct {
	features *repository.FeatureRepository
	loc      *time.Location
	rand     *rand.Rand
}

// NewFeatureService creates a new FeatureService instance. A nil rng
// falls back to a time-seeded source.
func NewFeatureService(features *repository.FeatureRepository, loc *time.Location, rng *rand.Rand) *FeatureService {
	if loc == nil {
		loc = time.UTC
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &FeatureService{features: features, loc: loc, rand: rng}
}

// NormalizeProviderKey strips the feature prefix: a "scan_<provider>"
// callback key addresses the provider itself.
func NormalizeProviderKey(key string) string {
	return strings.TrimPrefix(key, "scan_")
}

// IsProvider reports whether the key (after normalization) names a
// configured provider for the tenant.
func (s *FeatureService) IsProvider(ctx context.Context, tenantID uuid.UUID, key string) (bool, error) {
	return s.features.HasProvider(ctx, tenantID, NormalizeProviderKey(key))
}

// SetMedia stores or replaces the provider's media card.
func (s *FeatureService) SetMedia(ctx context.Context, tenantID uuid.UUID, provider, mediaType, fileID string) error {
	return s.features.SetMedia(ctx, &model.FeatureMedia{
		TenantID:  tenantID,
		Provider:  NormalizeProviderKey(provider),
		MediaType: mediaType,
		FileID:    fileID,
	})
}

// AddGames appends game names to a provider's list.
func (s *FeatureService) AddGames(ctx context.Context, tenantID uuid.UUID, provider string, names []string) error {
	return s.features.AddGames(ctx, tenantID, NormalizeProviderKey(provider), names)
}

// ClearGames drops a provider's game list.
func (s *FeatureService) ClearGames(ctx context.Context, tenantID uuid.UUID, provider string) error {
	return s.features.ClearGames(ctx, tenantID, NormalizeProviderKey(provider))
}

// Result is the rendered feature card ready for send or edit.
type Result struct {
	Media    *model.FeatureMedia
	Caption  string
	Keyboard [][]markup.Button
}

// Render builds the provider's result card for one user.
func (s *FeatureService) Render(ctx context.Context, tenantID uuid.UUID, provider, firstName string) (*Result, error) {
	provider = NormalizeProviderKey(provider)

	media, err := s.features.GetMedia(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}
	games, err := s.features.Games(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}

	return &Result{
		Media:    media,
		Caption:  s.buildCaption(firstName, strings.ToUpper(provider), games),
		Keyboard: resultKeyboard(provider),
	}, nil
}

// buildCaption shuffles the game list, samples up to 20 entries and
// attaches a random percentage to each; high percentages render bold.
func (s *FeatureService) buildCaption(firstName, providerLabel string, games []string) string {
	if firstName == "" {
		firstName = "Boss"
	}

	pool := make([]string, len(games))
	copy(pool, games)
	s.rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > 20 {
		pool = pool[:20]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> here are the scan percentages for <b>%s</b>\n",
		html.EscapeString(firstName), html.EscapeString(providerLabel))
	b.WriteString("➖➖➖➖➖\n")
	for _, g := range pool {
		pct := 34 + s.rand.Intn(62)
		if pct >= 80 {
			fmt.Fprintf(&b, "• <b>%s</b> 🔒 <b>%d%%</b>\n", html.EscapeString(g), pct)
		} else {
			fmt.Fprintf(&b, "• %s 🔒 %d%%\n", html.EscapeString(g), pct)
		}
	}
	b.WriteString("➖➖➖➖➖\n")
	fmt.Fprintf(&b, "🕒 <i>%s</i>", time.Now().In(s.loc).Format("02 Jan 2006 15:04"))
	return b.String()
}

func resultKeyboard(provider string) [][]markup.Button {
	return [][]markup.Button{{
		{Text: "🟢 Scan Again", CallbackData: "cb:scan_" + provider},
		{Text: "⬅️ Back", CallbackData: "cb:menuscanner"},
	}}
}
