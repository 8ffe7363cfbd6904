// Package markup converts stored rich text plus a compact button DSL into
// platform-renderable output. All functions are pure: no I/O, deterministic
// given their inputs and the injected random source.
package markup

import (
	"fmt"
	"html"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"telegram-affiliate-bot/internal/model"
)

// DateFormat is the local-date placeholder layout.
const DateFormat = "02/01/2006"

var (
	randTokenRe = regexp.MustCompile(`\{rand:(\d+)-(\d+)\}`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]\n]{1,120})\]\(([^)\s]+)\)`)
	mdBoldRe    = regexp.MustCompile(`\*\*([^*\n]{1,300})\*\*`)
	mdItalicRe  = regexp.MustCompile(`__([^_\n]{1,300})__`)
	urlSchemeRe = regexp.MustCompile(`(?i)^https?://`)
)

// Renderer substitutes placeholder tokens into operator-authored templates.
// The zero value renders with UTC dates and the global random source; tests
// inject Rand and Now for determinism.
type Renderer struct {
	BotUsername string
	Loc         *time.Location
	Rand        *rand.Rand
	Now         func() time.Time
}

// Render expands the author-facing markdown subset and the placeholder set
// against one user's profile snapshot. Placeholder values are escaped;
// template text itself may carry trusted markup and is left alone here
// (Sanitize runs on the final output before send).
func (r *Renderer) Render(tpl string, u *model.User) string {
	if tpl == "" {
		return ""
	}

	out := convertBasicMD(tpl)
	out = convertMDLinks(out)

	firstName := html.EscapeString(u.FirstName)
	userName := firstName
	if u.Username != nil && *u.Username != "" {
		userName = "@" + html.EscapeString(*u.Username)
	}
	memberID := u.MemberID
	if memberID == "" {
		memberID = "000000"
	}

	out = strings.ReplaceAll(out, "{firstname}", firstName)
	out = strings.ReplaceAll(out, "{username}", userName)
	out = strings.ReplaceAll(out, "{member_id}", html.EscapeString(memberID))
	out = strings.ReplaceAll(out, "[balance]", "RM"+u.Balance.StringFixed(2))
	out = strings.ReplaceAll(out, "[share]", strconv.FormatInt(u.SharedCount, 10))
	out = strings.ReplaceAll(out, "[link]", html.EscapeString(r.ReferralLink(u.UserID)))
	out = strings.ReplaceAll(out, "{date}", r.now().Format(DateFormat))

	out = randTokenRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := randTokenRe.FindStringSubmatch(m)
		lo, _ := strconv.Atoi(parts[1])
		hi, _ := strconv.Atoi(parts[2])
		return strconv.Itoa(r.randInt(lo, hi))
	})

	return out
}

// ReferralLink builds the deep link that credits this user as upline.
// Empty when the tenant has no public handle yet.
func (r *Renderer) ReferralLink(userID int64) string {
	if r.BotUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%d", r.BotUsername, userID)
}

func (r *Renderer) now() time.Time {
	var t time.Time
	if r.Now != nil {
		t = r.Now()
	} else {
		t = time.Now()
	}
	if r.Loc != nil {
		t = t.In(r.Loc)
	}
	return t
}

// randInt returns a random integer in [lo, hi].
func (r *Renderer) randInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	if r.Rand != nil {
		return lo + r.Rand.Intn(span)
	}
	return lo + rand.Intn(span)
}

// quotaTokens are resolved lazily: callers look them up against the quota
// counter only when a template actually references one.
var quotaTokens = []string{"{count}", "{used}", "{limit}", "{remaining}", "{reset}"}

// HasQuotaTokens reports whether the template references daily-usage state.
func HasQuotaTokens(tpl string) bool {
	for _, tok := range quotaTokens {
		if strings.Contains(tpl, tok) {
			return true
		}
	}
	return false
}

// ApplyQuotaTokens substitutes the daily-usage token set from resolved
// stats. {count} is a legacy alias of {used}.
func ApplyQuotaTokens(tpl string, stats model.QuotaStats, loc *time.Location) string {
	used := strconv.Itoa(stats.Used)
	limit := "UNLIMITED"
	remaining := "∞"
	if stats.Limit != nil {
		limit = strconv.Itoa(*stats.Limit)
	}
	if stats.Remaining != nil {
		remaining = strconv.Itoa(*stats.Remaining)
	}
	reset := stats.ResetAt
	if loc != nil {
		reset = reset.In(loc)
	}

	out := strings.ReplaceAll(tpl, "{count}", used)
	out = strings.ReplaceAll(out, "{used}", used)
	out = strings.ReplaceAll(out, "{limit}", limit)
	out = strings.ReplaceAll(out, "{remaining}", remaining)
	out = strings.ReplaceAll(out, "{reset}", reset.Format("02/01/2006 15:04"))
	return out
}

// NormalizeURL prefixes a secure scheme when the author omitted one.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !urlSchemeRe.MatchString(u) {
		u = "https://" + u
	}
	return u
}

// convertMDLinks rewrites [label](url) into an anchor tag.
func convertMDLinks(s string) string {
	return mdLinkRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := mdLinkRe.FindStringSubmatch(m)
		url := NormalizeURL(parts[2])
		if url == "" {
			return m
		}
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(parts[1]))
	})
}

// convertBasicMD rewrites the tiny markdown subset authors use:
// **bold** and __italic__. Intentionally minimal so ordinary text with
// single asterisks or underscores is untouched.
func convertBasicMD(s string) string {
	s = mdBoldRe.ReplaceAllString(s, "<b>$1</b>")
	s = mdItalicRe.ReplaceAllString(s, "<i>$1</i>")
	return s
}
