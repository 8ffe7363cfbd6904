package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// TimerScheduler is the in-process fallback: a deferred goroutine with no
// durability across restarts. Callers treat it as best-effort.
type TimerScheduler struct {
	executor Executor
}

// NewTimerScheduler creates a new TimerScheduler instance.
func NewTimerScheduler(executor Executor) *TimerScheduler {
	return &TimerScheduler{executor: executor}
}

// Schedule runs the task after the delay on a fresh goroutine. The task
// deliberately does not inherit the caller's context: the triggering
// request finishes long before the timer fires.
func (s *TimerScheduler) Schedule(_ context.Context, task Task, delay time.Duration) error {
	task.FireAt = time.Now().Add(delay).Unix()

	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.executor.ExecuteTask(ctx, task); err != nil {
			log.Error().Err(err).
				Str("tenant_id", task.TenantID).
				Str("key", task.Key).
				Msg("Deferred task execution failed")
		}
	})
	return nil
}
