package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntitiesToHTMLBasic(t *testing.T) {
	out := EntitiesToHTML("hello world", []Entity{
		{Type: "bold", Offset: 0, Length: 5},
	})
	assert.Equal(t, "<b>hello</b> world", out)
}

func TestEntitiesToHTMLUTF16Offsets(t *testing.T) {
	// The emoji occupies two UTF-16 code units; the bold span must still
	// land on "world".
	out := EntitiesToHTML("😀 world", []Entity{
		{Type: "bold", Offset: 3, Length: 5},
	})
	assert.Equal(t, "😀 <b>world</b>", out)
}

func TestEntitiesToHTMLTextLink(t *testing.T) {
	out := EntitiesToHTML("click here", []Entity{
		{Type: "text_link", Offset: 6, Length: 4, URL: "example.com"},
	})
	assert.Equal(t, `click <a href="https://example.com">here</a>`, out)
}

func TestEntitiesToHTMLUnknownTypeIgnored(t *testing.T) {
	out := EntitiesToHTML("plain", []Entity{
		{Type: "mention", Offset: 0, Length: 5},
	})
	assert.Equal(t, "plain", out)
}

func TestEntitiesToHTMLMultipleSpans(t *testing.T) {
	out := EntitiesToHTML("ab cd ef", []Entity{
		{Type: "bold", Offset: 0, Length: 2},
		{Type: "italic", Offset: 6, Length: 2},
	})
	assert.Equal(t, "<b>ab</b> cd <i>ef</i>", out)
}

func TestEntitiesToHTMLZeroLengthIgnored(t *testing.T) {
	out := EntitiesToHTML("abc", []Entity{{Type: "bold", Offset: 1, Length: 0}})
	assert.Equal(t, "abc", out)
}
