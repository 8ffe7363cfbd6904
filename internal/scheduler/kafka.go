package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"telegram-affiliate-bot/internal/config"
)

const (
	minBytes = 1
	maxBytes = 10e6
)

// KafkaScheduler is the durable scheduler: tasks are produced with a
// fire-at timestamp and a consumer group sleeps until it passes before
// executing. Delivery is at-least-once; the rendering path is idempotent
// (edits of an unchanged body are no-ops).
type KafkaScheduler struct {
	writer   *kafka.Writer
	reader   *kafka.Reader
	executor Executor
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewKafkaScheduler creates producer and consumer against the configured
// brokers.
func NewKafkaScheduler(cfg *config.SchedulerConfig, executor Executor) *KafkaScheduler {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ActionTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.ActionTopic,
		GroupID:     cfg.GroupID,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		MaxWait:     3 * time.Second,
		StartOffset: kafka.FirstOffset,
	})

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.ActionTopic).
		Str("group_id", cfg.GroupID).
		Msg("Kafka scheduler initialized")

	return &KafkaScheduler{
		writer:   writer,
		reader:   reader,
		executor: executor,
		done:     make(chan struct{}),
	}
}

// Schedule produces the task with its fire-at timestamp. Keyed by chat so
// tasks for one conversation stay ordered within a partition.
func (s *KafkaScheduler) Schedule(ctx context.Context, task Task, delay time.Duration) error {
	task.FireAt = time.Now().Add(delay).Unix()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := fmt.Sprintf("%s-%d", task.TenantID, task.ChatID)
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Debug().
		Str("tenant_id", task.TenantID).
		Str("key", task.Key).
		Int64("fire_at", task.FireAt).
		Msg("Deferred task enqueued")
	return nil
}

// Start launches the consumer loop.
func (s *KafkaScheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.consume(ctx)
	log.Info().Msg("Kafka scheduler consumer started")
}

func (s *KafkaScheduler) consume(ctx context.Context) {
	defer close(s.done)
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Failed to fetch task message")
			continue
		}

		var task Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Malformed task message, skipping")
			if err := s.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit malformed task")
			}
			continue
		}

		// Hold the task until its fire time.
		if wait := time.Until(time.Unix(task.FireAt, 0)); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		if err := s.executor.ExecuteTask(ctx, task); err != nil {
			log.Error().Err(err).
				Str("tenant_id", task.TenantID).
				Str("key", task.Key).
				Msg("Deferred task execution failed")
			// Commit anyway: the event is dropped after logging, matching
			// the per-event error isolation of the inbound path.
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit task message")
		}
	}
}

// Stop halts the consumer and closes both ends.
func (s *KafkaScheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.reader.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close scheduler reader")
	}
	return s.writer.Close()
}
