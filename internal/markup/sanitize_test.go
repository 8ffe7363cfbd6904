package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKeepsAllowedTags(t *testing.T) {
	in := `<b>bold</b> <i>it</i> <tg-spoiler>sh</tg-spoiler> <a href="https://x.com">x</a>`
	assert.Equal(t, in, Sanitize(in))
}

func TestSanitizeEscapesUnknownTags(t *testing.T) {
	out := Sanitize("hello <script>alert(1)</script> <upline>")

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<upline>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "&lt;upline&gt;")
	// inner text survives
	assert.Contains(t, out, "alert(1)")
}

func TestSanitizeCaseInsensitiveAllowlist(t *testing.T) {
	assert.Equal(t, "<B>x</B>", Sanitize("<B>x</B>"))
}

func TestSanitizeEmpty(t *testing.T) {
	assert.Equal(t, "", Sanitize(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcde…", Truncate("abcdefgh", 5))
}

func TestTruncateMultibyte(t *testing.T) {
	in := strings.Repeat("😀", 10)
	out := Truncate(in, 4)
	assert.Equal(t, strings.Repeat("😀", 4)+"…", out)
}
