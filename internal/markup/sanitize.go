package markup

import (
	"html"
	"regexp"
	"strings"
)

// allowedTags is the platform's HTML parse-mode allowlist. Anything else
// in rendered output must be escaped or the transport rejects the whole
// message.
var allowedTags = map[string]struct{}{
	"b": {}, "strong": {}, "i": {}, "em": {}, "u": {}, "ins": {},
	"s": {}, "strike": {}, "del": {}, "code": {}, "pre": {}, "a": {},
	"tg-spoiler": {},
}

var (
	tagRe     = regexp.MustCompile(`</?[^>]+>`)
	tagNameRe = regexp.MustCompile(`^</?\s*([a-zA-Z0-9-]+)`)
)

// Sanitize escapes every tag outside the allowlist. Operators routinely
// paste things like <upline> into templates; passing those through
// verbatim would make the platform reject the send.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return tagRe.ReplaceAllStringFunc(text, func(tag string) string {
		m := tagNameRe.FindStringSubmatch(tag)
		if m == nil {
			return html.EscapeString(tag)
		}
		if _, ok := allowedTags[strings.ToLower(m[1])]; ok {
			return tag
		}
		return html.EscapeString(tag)
	})
}

// Truncate cuts text to limit characters, appending a visible marker.
// Counting is by rune so multi-byte text is never split mid-character.
func Truncate(text string, limit int) string {
	if text == "" || limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
