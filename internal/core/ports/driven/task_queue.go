package driven

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// TaskQueue carries crawl starts, crawl polls, document deletions, integrity
// checks and maintenance to the workers. Redis Streams is the primary
// backend; Postgres is used when no Redis URL is configured.
type TaskQueue interface {
	// Enqueue stores task. Tasks with ScheduledFor in the future (crawl polls)
	// become visible only once that time has passed.
	Enqueue(ctx context.Context, task *domain.Task) error

	// EnqueueBatch stores all tasks or none.
	EnqueueBatch(ctx context.Context, tasks []*domain.Task) error

	// Dequeue claims the next due task, highest priority first. Returns nil, nil
	// when nothing is due.
	Dequeue(ctx context.Context) (*domain.Task, error)

	// DequeueWithTimeout is Dequeue waiting up to timeout seconds for a task.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack marks a claimed task completed.
	Ack(ctx context.Context, taskID string) error

	// Nack records a failed attempt. The task is rescheduled with backoff while
	// attempts remain and marked failed afterwards.
	Nack(ctx context.Context, taskID string, reason string) error

	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// CancelTask drops a pending task. Claimed or finished tasks cannot be
	// cancelled.
	CancelTask(ctx context.Context, taskID string) error

	// PurgeTasks deletes completed and failed tasks finished more than
	// olderThan seconds ago and returns the count.
	PurgeTasks(ctx context.Context, olderThan int) (int, error)

	Stats(ctx context.Context) (*QueueStats, error)

	Ping(ctx context.Context) error

	Close() error
}

// TaskFilter narrows ListTasks; zero fields match everything
type TaskFilter struct {
	CorpusID string
	Status   domain.TaskStatus
	Type     domain.TaskType
	Limit    int
	Offset   int
}

// QueueStats counts tasks per status
type QueueStats struct {
	PendingCount    int64 `json:"pending_count"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`

	// OldestPendingAge is in seconds; a growing value means the workers are
	// behind on crawl polls
	OldestPendingAge int64 `json:"oldest_pending_age"`
}

// SchedulerStore persists the maintenance schedules (task purge).
type SchedulerStore interface {
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SaveScheduledTask upserts by id
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error
	DeleteScheduledTask(ctx context.Context, id string) error

	// GetDueScheduledTasks returns enabled schedules whose next run has passed
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun stamps a run and moves the next run one interval ahead
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
