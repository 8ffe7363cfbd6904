package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	mu    sync.Mutex
	tasks []Task
	fired chan struct{}
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{fired: make(chan struct{}, 16)}
}

func (e *recordingExecutor) ExecuteTask(_ context.Context, task Task) error {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	e.fired <- struct{}{}
	return nil
}

func (e *recordingExecutor) executed() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

func TestTimerSchedulerFiresAfterDelay(t *testing.T) {
	exec := newRecordingExecutor()
	s := NewTimerScheduler(exec)

	task := Task{TenantID: "t1", ChatID: 10, UserID: 20, MessageID: 30, Key: "bonus"}
	require.NoError(t, s.Schedule(context.Background(), task, 20*time.Millisecond))

	assert.Empty(t, exec.executed(), "task must not fire before the delay")

	select {
	case <-exec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}

	got := exec.executed()
	require.Len(t, got, 1)
	assert.Equal(t, "bonus", got[0].Key)
	assert.Equal(t, int64(10), got[0].ChatID)
	assert.NotZero(t, got[0].FireAt)
}

func TestTimerSchedulerZeroDelayFiresImmediately(t *testing.T) {
	exec := newRecordingExecutor()
	s := NewTimerScheduler(exec)

	require.NoError(t, s.Schedule(context.Background(), Task{Key: "now"}, 0))

	select {
	case <-exec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
}
