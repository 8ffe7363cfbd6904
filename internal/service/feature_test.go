package service

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizeProviderKey(t *testing.T) {
	assert.Equal(t, "provider1", NormalizeProviderKey("scan_provider1"))
	assert.Equal(t, "provider1", NormalizeProviderKey("provider1"))
	assert.Equal(t, "", NormalizeProviderKey("scan_"))
}

func newTestFeatureService(seed int64) *FeatureService {
	return NewFeatureService(nil, time.UTC, rand.New(rand.NewSource(seed)))
}

func TestBuildCaptionSamplesAtMostTwenty(t *testing.T) {
	s := newTestFeatureService(1)

	games := make([]string, 50)
	for i := range games {
		games[i] = fmt.Sprintf("Game %02d", i)
	}

	caption := s.buildCaption("Alice", "PROVIDER1", games)
	assert.Equal(t, 20, strings.Count(caption, "• "), "caption lists at most 20 games")
	assert.Contains(t, caption, "<b>Alice</b>")
	assert.Contains(t, caption, "<b>PROVIDER1</b>")
}

func TestBuildCaptionEmptyNameFallsBack(t *testing.T) {
	s := newTestFeatureService(2)
	caption := s.buildCaption("", "X", []string{"Solo"})
	assert.Contains(t, caption, "<b>Boss</b>")
}

func TestBuildCaptionEscapesGameNames(t *testing.T) {
	s := newTestFeatureService(3)
	caption := s.buildCaption("A", "X", []string{"<script>bad</script>"})
	assert.NotContains(t, caption, "<script>")
	assert.Contains(t, caption, "&lt;script&gt;")
}

// Percentages always land in 34..95, and anything from 80 up renders bold.
func TestBuildCaptionPercentageBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		n := rapid.IntRange(1, 30).Draw(t, "games")

		games := make([]string, n)
		for i := range games {
			games[i] = fmt.Sprintf("g%d", i)
		}

		caption := newTestFeatureService(seed).buildCaption("U", "P", games)
		for _, line := range strings.Split(caption, "\n") {
			if !strings.HasPrefix(line, "• ") {
				continue
			}
			var pct int
			rest := line[strings.Index(line, "🔒"):]
			if _, err := fmt.Sscanf(strings.NewReplacer("<b>", "", "</b>", "", "%", "").Replace(rest), "🔒 %d", &pct); err != nil {
				t.Fatalf("unparsable line %q", line)
			}
			if pct < 34 || pct > 95 {
				t.Fatalf("percentage %d out of range in %q", pct, line)
			}
			if pct >= 80 && !strings.Contains(rest, "<b>") {
				t.Fatalf("high percentage not bold in %q", line)
			}
		}
	})
}

func TestResultKeyboardTargetsProvider(t *testing.T) {
	kb := resultKeyboard("provider1")
	assert.Len(t, kb, 1)
	assert.Equal(t, "cb:scan_provider1", kb[0][0].CallbackData)
	assert.Equal(t, "cb:menuscanner", kb[0][1].CallbackData)
}
