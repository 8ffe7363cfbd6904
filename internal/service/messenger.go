// Package service provides business logic implementations.
package service

import (
	"context"

	"telegram-affiliate-bot/internal/markup"
	"telegram-affiliate-bot/internal/model"
)

// Messenger is the outbound surface services need from the chat platform
// client. Failures are logged by callers and never roll back committed
// state.
type Messenger interface {
	// SendText delivers a text message and returns the platform message id.
	SendText(ctx context.Context, tenant *model.Tenant, chatID int64, text string, keyboard [][]markup.Button) (int, error)
	// SendMedia delivers media with an optional caption.
	SendMedia(ctx context.Context, tenant *model.Tenant, chatID int64, mediaType, fileID, caption string, keyboard [][]markup.Button) (int, error)
	// EditText replaces a message body in place. Editing to an unchanged
	// body is a no-op, not an error.
	EditText(ctx context.Context, tenant *model.Tenant, chatID int64, messageID int, text string, keyboard [][]markup.Button) error
}

// sendSlot delivers a templated message slot: media with caption when the
// slot has media, plain text otherwise.
func sendSlot(ctx context.Context, m Messenger, tenant *model.Tenant, chatID int64, text string, media model.MediaRef, keyboard [][]markup.Button) error {
	if media.Set() {
		_, err := m.SendMedia(ctx, tenant, chatID, *media.Type, *media.FileID, text, keyboard)
		return err
	}
	_, err := m.SendText(ctx, tenant, chatID, text, keyboard)
	return err
}
