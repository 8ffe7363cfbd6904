// Package scheduler defers a callback's visible result: an action with a
// positive delay is re-rendered and applied after the delay elapses, by a
// durable queue or an in-process timer depending on configuration.
package scheduler

import (
	"context"
	"time"
)

// Task carries enough context for a stateless handler to fully replay a
// deferred action: the action is re-resolved by key at fire time, so a
// redefinition between enqueue and fire changes what renders.
type Task struct {
	TenantID  string `json:"tenant_id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	MessageID int    `json:"message_id"`
	Key       string `json:"key"`
	FireAt    int64  `json:"fire_at"` // unix seconds
}

// Executor re-runs the rendering path for a fired task. Implemented by
// the event router.
type Executor interface {
	ExecuteTask(ctx context.Context, task Task) error
}

// Scheduler schedules a task to run after a delay. Implementations differ
// only in durability: the queue survives restarts, the timer does not.
type Scheduler interface {
	Schedule(ctx context.Context, task Task, delay time.Duration) error
}
