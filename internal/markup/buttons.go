package markup

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// WithdrawCallbackData is the fixed callback payload produced by the
// withdrawal button kind.
const WithdrawCallbackData = "req_withdraw"

// Button is one inline keyboard button. Exactly one of URL, CallbackData
// or SwitchInlineQuery is set.
type Button struct {
	Text              string
	URL               string
	CallbackData      string
	SwitchInlineQuery string
}

var (
	buttonLineRe  = regexp.MustCompile(`^!(\d+)(link|callback|share|withdrawal)\s+(.+)$`)
	delayTokenRe  = regexp.MustCompile(`(?i)\bdelay\s*=\s*(\d+)\b`)
	delayScrubRe  = regexp.MustCompile(`(?i)\s*\bdelay\s*=\s*\d+\b`)
	defaultShareQ = "Come join!"
)

// ParseButtons extracts the line-oriented button DSL from a template.
// A line of the form "!<row><kind> <rest>" declares a button in keyboard
// row <row>; rows are emitted in ascending numeric order. Non-matching
// lines pass through as visible content in their original order.
//
// Kinds:
//
//	link        label|url        (url auto-prefixed with https:// if bare)
//	callback    label|key        (optional "delay=N" inside the key text)
//	share       label            (share-referral-link affordance)
//	withdrawal  label            (fixed request-withdrawal affordance)
func ParseButtons(text string, shareQuery string) (string, [][]Button) {
	if text == "" {
		return "", nil
	}

	var visible []string
	rows := make(map[int][]Button)

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "!") {
			if m := buttonLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				row, _ := strconv.Atoi(m[1])
				kind, content := m[2], strings.TrimSpace(m[3])

				switch kind {
				case "link":
					name, url := "Link", content
					if i := strings.Index(content, "|"); i >= 0 {
						name, url = content[:i], content[i+1:]
					}
					rows[row] = append(rows[row], Button{
						Text: strings.TrimSpace(name),
						URL:  NormalizeURL(url),
					})

				case "callback":
					name, keyRaw := content, "error"
					if i := strings.Index(content, "|"); i >= 0 {
						name, keyRaw = content[:i], content[i+1:]
					}
					rows[row] = append(rows[row], Button{
						Text:         strings.TrimSpace(name),
						CallbackData: callbackData(keyRaw),
					})

				case "share":
					q := shareQuery
					if q == "" {
						q = defaultShareQ
					}
					rows[row] = append(rows[row], Button{
						Text:              content,
						SwitchInlineQuery: q,
					})

				case "withdrawal":
					rows[row] = append(rows[row], Button{
						Text:         content,
						CallbackData: WithdrawCallbackData,
					})
				}
				continue
			}
		}
		visible = append(visible, line)
	}

	nums := make([]int, 0, len(rows))
	for n := range rows {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var keyboard [][]Button
	for _, n := range nums {
		keyboard = append(keyboard, rows[n])
	}

	return strings.TrimSpace(strings.Join(visible, "\n")), keyboard
}

// callbackData renders "cb:<key>" with an optional ";d=<seconds>" suffix
// parsed out of an embedded delay=N override.
func callbackData(keyRaw string) string {
	keyRaw = strings.TrimSpace(keyRaw)

	delay := -1
	if m := delayTokenRe.FindStringSubmatch(keyRaw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			delay = n
		}
		keyRaw = strings.TrimSpace(delayScrubRe.ReplaceAllString(keyRaw, ""))
	}

	if keyRaw == "" {
		keyRaw = "error"
	}
	data := "cb:" + keyRaw
	if delay >= 0 {
		data = fmt.Sprintf("%s;d=%d", data, delay)
	}
	return data
}

// ParseCallbackData splits "cb:<key>[;d=<seconds>]" into the action key
// and the delay override (-1 when absent).
func ParseCallbackData(data string) (key string, delayOverride int, ok bool) {
	if !strings.HasPrefix(data, "cb:") {
		return "", -1, false
	}
	rest := strings.TrimPrefix(data, "cb:")
	delayOverride = -1
	if i := strings.LastIndex(rest, ";d="); i >= 0 {
		if n, err := strconv.Atoi(rest[i+3:]); err == nil {
			delayOverride = n
			rest = rest[:i]
		}
	}
	return rest, delayOverride, true
}
