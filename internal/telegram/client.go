// Package telegram wraps the chat platform API with per-tenant bot
// instances, output sanitization and length budgets.
package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
)

// Client is a multi-tenant platform client. Bot instances are created
// lazily per token and cached; the cache is the only shared mutable state
// and is guarded by its own lock.
type Client struct {
	mu   sync.RWMutex
	bots map[string]*tgbotapi.BotAPI

	textLimit    int
	captionLimit int
}

// NewClient creates a new Client with the given length budgets.
func NewClient(textLimit, captionLimit int) *Client {
	if textLimit <= 0 {
		textLimit = 3500
	}
	if captionLimit <= 0 {
		captionLimit = 900
	}
	return &Client{
		bots:         make(map[string]*tgbotapi.BotAPI),
		textLimit:    textLimit,
		captionLimit: captionLimit,
	}
}

func (c *Client) bot(token string) (*tgbotapi.BotAPI, error) {
	c.mu.RLock()
	bot, ok := c.bots[token]
	c.mu.RUnlock()
	if ok {
		return bot, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bot, ok := c.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	c.bots[token] = bot
	return bot, nil
}

// isNotModified detects the platform's "message is not modified" error,
// which edits treat as success.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func keyboardMarkup(rows [][]markup.Button) *tgbotapi.InlineKeyboardMarkup {
	if rows == nil {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := tgbotapi.InlineKeyboardButton{Text: b.Text}
			switch {
			case b.URL != "":
				url := b.URL
				btn.URL = &url
			case b.SwitchInlineQuery != "":
				q := b.SwitchInlineQuery
				btn.SwitchInlineQueryCurrentChat = &q
			default:
				data := b.CallbackData
				btn.CallbackData = &data
			}
			out = append(out, btn)
		}
		kb = append(kb, out)
	}
	m := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &m
}

// SendText delivers a sanitized, truncated HTML text message.
func (c *Client) SendText(ctx context.Context, tenant *model.Tenant, chatID int64, text string, keyboard [][]markup.Button) (int, error) {
	if text == "" {
		return 0, nil
	}
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, markup.Truncate(markup.Sanitize(text), c.textLimit))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb := keyboardMarkup(keyboard); kb != nil {
		msg.ReplyMarkup = kb
	}

	sent, err := bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// SendMedia delivers media by file id with a sanitized caption.
func (c *Client) SendMedia(ctx context.Context, tenant *model.Tenant, chatID int64, mediaType, fileID, caption string, keyboard [][]markup.Button) (int, error) {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return 0, err
	}

	caption = markup.Truncate(markup.Sanitize(caption), c.captionLimit)
	file := tgbotapi.FileID(fileID)

	var chattable tgbotapi.Chattable
	switch model.ActionType(mediaType) {
	case model.ActionPhoto:
		m := tgbotapi.NewPhoto(chatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if kb := keyboardMarkup(keyboard); kb != nil {
			m.ReplyMarkup = kb
		}
		chattable = m
	case model.ActionVideo:
		m := tgbotapi.NewVideo(chatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if kb := keyboardMarkup(keyboard); kb != nil {
			m.ReplyMarkup = kb
		}
		chattable = m
	case model.ActionAnimation:
		m := tgbotapi.NewAnimation(chatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if kb := keyboardMarkup(keyboard); kb != nil {
			m.ReplyMarkup = kb
		}
		chattable = m
	case model.ActionDocument:
		m := tgbotapi.NewDocument(chatID, file)
		m.Caption = caption
		m.ParseMode = tgbotapi.ModeHTML
		if kb := keyboardMarkup(keyboard); kb != nil {
			m.ReplyMarkup = kb
		}
		chattable = m
	default:
		return c.SendText(ctx, tenant, chatID, caption, keyboard)
	}

	sent, err := bot.Send(chattable)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditText replaces a message body in place. An unmodified body is a
// no-op, not an error.
func (c *Client) EditText(ctx context.Context, tenant *model.Tenant, chatID int64, messageID int, text string, keyboard [][]markup.Button) error {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, markup.Truncate(markup.Sanitize(text), c.textLimit))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if kb := keyboardMarkup(keyboard); kb != nil {
		edit.ReplyMarkup = kb
	}

	if _, err := bot.Send(edit); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

// EditCaption replaces a media message's caption in place.
func (c *Client) EditCaption(ctx context.Context, tenant *model.Tenant, chatID int64, messageID int, caption string, keyboard [][]markup.Button) error {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, markup.Truncate(markup.Sanitize(caption), c.captionLimit))
	edit.ParseMode = tgbotapi.ModeHTML
	if kb := keyboardMarkup(keyboard); kb != nil {
		edit.ReplyMarkup = kb
	}

	if _, err := bot.Send(edit); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

// EditMedia swaps a media message's content and caption in place.
func (c *Client) EditMedia(ctx context.Context, tenant *model.Tenant, chatID int64, messageID int, mediaType, fileID, caption string, keyboard [][]markup.Button) error {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return err
	}

	caption = markup.Truncate(markup.Sanitize(caption), c.captionLimit)

	var media tgbotapi.BaseInputMedia
	media.Type = mediaType
	media.Media = tgbotapi.FileID(fileID)
	media.Caption = caption
	media.ParseMode = tgbotapi.ModeHTML

	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID},
		Media:    media,
	}
	if kb := keyboardMarkup(keyboard); kb != nil {
		edit.BaseEdit.ReplyMarkup = kb
	}

	if _, err := bot.Send(edit); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally with an alert.
func (c *Client) AnswerCallback(ctx context.Context, tenant *model.Tenant, callbackID, text string, showAlert bool) {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve bot for callback answer")
		return
	}

	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = showAlert
	if _, err := bot.Request(cb); err != nil {
		log.Warn().Err(err).Msg("Failed to answer callback query")
	}
}

// RequestContact sends a one-tap reply keyboard asking the user to share
// their phone number.
func (c *Client) RequestContact(ctx context.Context, tenant *model.Tenant, chatID int64, text, buttonLabel string) error {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, markup.Truncate(markup.Sanitize(text), c.textLimit))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(buttonLabel)),
	)
	_, err = bot.Send(msg)
	return err
}

// RemoveReplyKeyboard sends text while clearing any reply keyboard.
func (c *Client) RemoveReplyKeyboard(ctx context.Context, tenant *model.Tenant, chatID int64, text string) error {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, markup.Truncate(markup.Sanitize(text), c.textLimit))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	_, err = bot.Send(msg)
	return err
}

// IsChatMember reports whether the user belongs to the target chat.
// Used by the join gate; lookup failures fail open so a misconfigured
// target cannot lock every user out.
func (c *Client) IsChatMember(ctx context.Context, tenant *model.Tenant, target string, userID int64) bool {
	bot, err := c.bot(tenant.Token)
	if err != nil {
		return true
	}

	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: target,
			UserID:             userID,
		},
	}
	member, err := bot.GetChatMember(cfg)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("Join-gate membership lookup failed")
		return true
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true
	}
	return false
}
