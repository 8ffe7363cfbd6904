package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/model"
	"telegram-affiliate-bot/internal/repository"
)

// BroadcastService fans a message out to every member of a tenant in
// batches. Delivery is best-effort per recipient: individual transport
// failures are logged and skipped.
type BroadcastService struct {
	users     *repository.UserRepository
	messenger Messenger
	batchSize int
}

// NewBroadcastService creates a new BroadcastService instance.
func NewBroadcastService(users *repository.UserRepository, messenger Messenger, batchSize int) *BroadcastService {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &BroadcastService{users: users, messenger: messenger, batchSize: batchSize}
}

// Batch is one replayable unit of a broadcast: enough context for a
// stateless handler to deliver it.
type Batch struct {
	TenantID  string  `json:"tenant_id"`
	Text      string  `json:"text"`
	MediaType string  `json:"media_type,omitempty"`
	FileID    string  `json:"file_id,omitempty"`
	UserIDs   []int64 `json:"user_ids"`
}

// Broadcast splits the member list into batches and delivers them
// sequentially. Returns the number of recipients attempted.
func (s *BroadcastService) Broadcast(ctx context.Context, tenant *model.Tenant, text string, media model.MediaRef) (int, error) {
	ids, err := s.users.ListIDs(ctx, tenant.ID)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := Batch{TenantID: tenant.ID.String(), Text: text, UserIDs: ids[start:end]}
		if media.Set() {
			batch.MediaType = *media.Type
			batch.FileID = *media.FileID
		}
		s.DeliverBatch(ctx, tenant, batch)
	}

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Int("recipients", len(ids)).
		Msg("Broadcast dispatched")
	return len(ids), nil
}

// DeliverBatch sends one batch. Exposed so an external queue can replay
// batches through the task endpoint.
func (s *BroadcastService) DeliverBatch(ctx context.Context, tenant *model.Tenant, batch Batch) {
	for _, uid := range batch.UserIDs {
		var err error
		if batch.MediaType != "" && batch.FileID != "" {
			_, err = s.messenger.SendMedia(ctx, tenant, uid, batch.MediaType, batch.FileID, batch.Text, nil)
		} else {
			_, err = s.messenger.SendText(ctx, tenant, uid, batch.Text, nil)
		}
		if err != nil {
			log.Warn().Err(err).Int64("user_id", uid).Msg("Broadcast delivery failed")
		}
		// Pace sends to stay under the platform's flood limits.
		time.Sleep(50 * time.Millisecond)
	}
}
