package router

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"telegram-affiliate-bot/internal/model"
)

func msgWithText(text string) *tgbotapi.Message {
	return &tgbotapi.Message{Text: text}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"plain", "/start", "start", "", true},
		{"with args", "/start 12345", "start", "12345", true},
		{"bot suffix stripped", "/start@MyTestBot 99", "start", "99", true},
		{"uppercase normalized", "/START", "start", "", true},
		{"newline separator", "/broadcast\nhello", "broadcast", "hello", true},
		{"not a command", "hello there", "", "", false},
		{"bare slash", "/", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := parseCommand(msgWithText(tt.text))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestParseCommandUsesCaption(t *testing.T) {
	msg := &tgbotapi.Message{Caption: "/setcallback bonus delay=5"}
	name, args, ok := parseCommand(msg)
	assert.True(t, ok)
	assert.Equal(t, "setcallback", name)
	assert.Equal(t, "bonus delay=5", args)
}

func TestTrimAt(t *testing.T) {
	assert.Equal(t, "mychannel", trimAt("@mychannel"))
	assert.Equal(t, "mychannel", trimAt("mychannel"))
	assert.Equal(t, "", trimAt(""))
}

func TestLoadingTextFallback(t *testing.T) {
	assert.Equal(t, "⏳ Processing...", loadingText(&model.Tenant{}))

	custom := "Please wait..."
	assert.Equal(t, custom, loadingText(&model.Tenant{LoadingText: &custom}))

	empty := ""
	assert.Equal(t, "⏳ Processing...", loadingText(&model.Tenant{LoadingText: &empty}))
}

func TestReplyContentPicksLargestPhoto(t *testing.T) {
	msg := &tgbotapi.Message{
		Caption: "hello <world>",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 1280},
		},
	}
	body, actionType, fileID := replyContent(msg)
	assert.Equal(t, model.ActionPhoto, actionType)
	assert.NotNil(t, fileID)
	assert.Equal(t, "large", *fileID)
	assert.Equal(t, "hello <world>", body)
}

// A scan_<provider> callback addresses the action stored under the bare
// provider key, so an operator-defined card for "jili" is reachable from
// a cb:scan_jili press.
func TestActionKeyCanonicalizesScanAlias(t *testing.T) {
	assert.Equal(t, "jili", actionKey("scan_jili"))
	assert.Equal(t, "jili", actionKey("jili"))
	assert.Equal(t, "bonus", actionKey("bonus"))
}

func TestMessageHTMLRebuildsEntities(t *testing.T) {
	msg := &tgbotapi.Message{
		Text: "Withdrawal request from Alice",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bold", Offset: 0, Length: 18},
		},
	}
	assert.Equal(t, "<b>Withdrawal request</b> from Alice", messageHTML(msg))
}

func TestMessageHTMLUsesCaption(t *testing.T) {
	msg := &tgbotapi.Message{
		Caption: "pay me",
		CaptionEntities: []tgbotapi.MessageEntity{
			{Type: "code", Offset: 4, Length: 2},
		},
	}
	assert.Equal(t, "pay <code>me</code>", messageHTML(msg))
}

func TestReplyContentAppliesEntities(t *testing.T) {
	msg := &tgbotapi.Message{
		Text: "make this bold",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bold", Offset: 10, Length: 4},
		},
	}
	body, actionType, fileID := replyContent(msg)
	assert.Equal(t, model.ActionText, actionType)
	assert.Nil(t, fileID)
	assert.Equal(t, "make this <b>bold</b>", body)
}
