package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseButtonsLink(t *testing.T) {
	visible, kb := ParseButtons("Welcome!\n!1link Go|example.com", "")

	assert.Equal(t, "Welcome!", visible)
	require.Len(t, kb, 1)
	require.Len(t, kb[0], 1)
	assert.Equal(t, "Go", kb[0][0].Text)
	assert.Equal(t, "https://example.com", kb[0][0].URL)
}

func TestParseButtonsLinkWithoutLabel(t *testing.T) {
	_, kb := ParseButtons("!1link example.com", "")

	require.Len(t, kb, 1)
	assert.Equal(t, "Link", kb[0][0].Text)
	assert.Equal(t, "https://example.com", kb[0][0].URL)
}

func TestParseButtonsCallback(t *testing.T) {
	_, kb := ParseButtons("!1callback Bonus|bonus", "")

	require.Len(t, kb, 1)
	assert.Equal(t, "cb:bonus", kb[0][0].CallbackData)
}

func TestParseButtonsCallbackDelayOverride(t *testing.T) {
	_, kb := ParseButtons("!1callback Scan|provider1 delay=5", "")

	require.Len(t, kb, 1)
	assert.Equal(t, "cb:provider1;d=5", kb[0][0].CallbackData)
}

func TestParseButtonsShareAndWithdrawal(t *testing.T) {
	_, kb := ParseButtons("!1share Share Now\n!2withdrawal Withdraw", "Join us!")

	require.Len(t, kb, 2)
	assert.Equal(t, "Share Now", kb[0][0].Text)
	assert.Equal(t, "Join us!", kb[0][0].SwitchInlineQuery)
	assert.Equal(t, WithdrawCallbackData, kb[1][0].CallbackData)
}

func TestParseButtonsRowOrdering(t *testing.T) {
	text := "!3link C|c.com\n!1link A|a.com\n!2link B|b.com"
	_, kb := ParseButtons(text, "")

	require.Len(t, kb, 3)
	assert.Equal(t, "A", kb[0][0].Text)
	assert.Equal(t, "B", kb[1][0].Text)
	assert.Equal(t, "C", kb[2][0].Text)
}

func TestParseButtonsNonDSLLinesPassThrough(t *testing.T) {
	text := "line one\n!notabutton hello\n!1link X|x.com\nline two"
	visible, kb := ParseButtons(text, "")

	assert.Equal(t, "line one\n!notabutton hello\nline two", visible)
	require.Len(t, kb, 1)
}

func TestParseButtonsEmpty(t *testing.T) {
	visible, kb := ParseButtons("", "")
	assert.Empty(t, visible)
	assert.Nil(t, kb)
}

func TestParseCallbackData(t *testing.T) {
	key, delay, ok := ParseCallbackData("cb:bonus")
	require.True(t, ok)
	assert.Equal(t, "bonus", key)
	assert.Equal(t, -1, delay)

	key, delay, ok = ParseCallbackData("cb:scan_mega;d=7")
	require.True(t, ok)
	assert.Equal(t, "scan_mega", key)
	assert.Equal(t, 7, delay)

	_, _, ok = ParseCallbackData("req_withdraw")
	assert.False(t, ok)
}

// TestParseButtonsProperty: parsing never panics, never loses non-DSL
// lines, and always emits rows with at least one button.
func TestParseButtonsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numLines := rapid.IntRange(0, 12).Draw(t, "numLines")
		var lines []string
		var wantVisible []string
		for i := 0; i < numLines; i++ {
			if rapid.Bool().Draw(t, "isButton") {
				row := rapid.IntRange(1, 5).Draw(t, "row")
				label := rapid.StringMatching(`[A-Za-z]{1,10}`).Draw(t, "label")
				lines = append(lines, "!"+string(rune('0'+row))+"link "+label+"|example.com")
			} else {
				line := rapid.StringMatching(`[A-Za-z0-9 ]{0,30}`).Draw(t, "plain")
				lines = append(lines, line)
				wantVisible = append(wantVisible, line)
			}
		}

		visible, kb := ParseButtons(strings.Join(lines, "\n"), "")

		assert.Equal(t, strings.TrimSpace(strings.Join(wantVisible, "\n")), visible)
		for _, row := range kb {
			assert.NotEmpty(t, row)
		}
	})
}
