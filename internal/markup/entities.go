package markup

import (
	"fmt"
	"html"
	"sort"
	"unicode/utf16"
)

// Entity is one platform rich-text span. Offset and Length are counted in
// UTF-16 code units, the platform's native unit, not in runes or bytes.
type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
}

var entityTags = map[string][2]string{
	"bold":          {"<b>", "</b>"},
	"italic":        {"<i>", "</i>"},
	"underline":     {"<u>", "</u>"},
	"strikethrough": {"<s>", "</s>"},
	"code":          {"<code>", "</code>"},
	"pre":           {"<pre>", "</pre>"},
	"spoiler":       {"<tg-spoiler>", "</tg-spoiler>"},
}

type tagInsert struct {
	byteOff int
	tag     string
}

// EntitiesToHTML converts platform rich-text spans into HTML markup,
// mapping UTF-16 offsets onto byte positions so emoji and other
// astral-plane characters do not shift the tags.
func EntitiesToHTML(text string, entities []Entity) string {
	if text == "" || len(entities) == 0 {
		return text
	}

	// Cumulative UTF-16 width at each rune boundary, paired with the
	// byte index of that boundary.
	type boundary struct{ u16, byteIdx int }
	boundaries := []boundary{{0, 0}}
	u16 := 0
	for i, r := range text {
		u16 += len(utf16.Encode([]rune{r}))
		boundaries = append(boundaries, boundary{u16, i + len(string(r))})
	}

	toByte := func(pos int) int {
		for _, b := range boundaries {
			if b.u16 >= pos {
				return b.byteIdx
			}
		}
		return boundaries[len(boundaries)-1].byteIdx
	}

	var inserts []tagInsert
	for _, ent := range entities {
		if ent.Length <= 0 {
			continue
		}
		start := toByte(ent.Offset)
		end := toByte(ent.Offset + ent.Length)
		if start >= end {
			continue
		}

		var open, closing string
		if pair, ok := entityTags[ent.Type]; ok {
			open, closing = pair[0], pair[1]
		} else if ent.Type == "text_link" {
			url := NormalizeURL(ent.URL)
			if url == "" {
				continue
			}
			open = fmt.Sprintf(`<a href="%s">`, html.EscapeString(url))
			closing = "</a>"
		} else {
			continue
		}

		inserts = append(inserts, tagInsert{start, open}, tagInsert{end, closing})
	}

	if len(inserts) == 0 {
		return text
	}

	// Insert back to front so earlier offsets stay valid. Stable keeps
	// open/close ordering for spans sharing a boundary.
	sort.SliceStable(inserts, func(i, j int) bool {
		return inserts[i].byteOff > inserts[j].byteOff
	})

	out := text
	for _, ins := range inserts {
		out = out[:ins.byteOff] + ins.tag + out[ins.byteOff:]
	}
	return out
}
