package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Options configures a Queue. Zero values take the defaults below.
type Options struct {
	// Prefix namespaces every key (default "corpus:")
	Prefix string
	// ConsumerName must be unique per worker instance
	ConsumerName string
	// TaskTTL bounds how long task records are kept (default 24h)
	TaskTTL time.Duration
	// ClaimAfter is how long a delivered task may stay unacked before
	// another consumer takes it over (default 5m)
	ClaimAfter time.Duration
}

// Queue implements TaskQueue with a Redis stream and consumer group for due
// tasks and a sorted set, scored by due time in milliseconds, for delayed
// ones. Task records live in plain keys and their ids in an index set.
type Queue struct {
	client     redis.UniversalClient
	consumer   string
	taskTTL    time.Duration
	claimAfter time.Duration
	now        func() time.Time

	stream  string
	group   string
	delayed string
	index   string
	prefix  string
}

// NewQueue creates the consumer group if needed and returns the queue.
func NewQueue(ctx context.Context, client redis.UniversalClient, opts Options) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "corpus:"
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "worker-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = 24 * time.Hour
	}
	if opts.ClaimAfter <= 0 {
		opts.ClaimAfter = 5 * time.Minute
	}

	q := &Queue{
		client:     client,
		consumer:   opts.ConsumerName,
		taskTTL:    opts.TaskTTL,
		claimAfter: opts.ClaimAfter,
		now:        time.Now,
		stream:     opts.Prefix + "tasks",
		group:      opts.Prefix + "workers",
		delayed:    opts.Prefix + "delayed",
		index:      opts.Prefix + "task-index",
		prefix:     opts.Prefix + "task:",
	}

	err := client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func (q *Queue) taskKey(id string) string { return q.prefix + id }
func (q *Queue) msgKey(id string) string  { return q.prefix + id + ":msg" }

func (q *Queue) store(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, q.taskKey(task.ID), data, q.taskTTL)
	return nil
}

func (q *Queue) streamValues(task *domain.Task) map[string]any {
	return map[string]any{
		"task_id":   task.ID,
		"type":      string(task.Type),
		"corpus_id": task.CorpusID,
	}
}

// schedule stores task and routes it to the stream or the delayed set
func (q *Queue) schedule(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	if err := q.store(ctx, pipe, task); err != nil {
		return err
	}
	pipe.SAdd(ctx, q.index, task.ID)
	if task.ScheduledFor.After(q.now()) {
		pipe.ZAdd(ctx, q.delayed, redis.Z{
			Score:  float64(task.ScheduledFor.UnixMilli()),
			Member: task.ID,
		})
		return nil
	}
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: q.streamValues(task)})
	return nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds tasks in one MULTI/EXEC transaction.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	pipe := q.client.TxPipeline()
	for _, task := range tasks {
		if task == nil {
			return errors.New("task is required")
		}
		if err := q.schedule(ctx, pipe, task); err != nil {
			return err
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks until a task is delivered or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.read(ctx, 0)
}

// DequeueWithTimeout waits up to timeout seconds for a task.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if timeout <= 0 {
		// go-redis omits BLOCK for negative durations
		return q.read(ctx, -1)
	}
	return q.read(ctx, time.Duration(timeout)*time.Second)
}

func (q *Queue) read(ctx context.Context, block time.Duration) (*domain.Task, error) {
	// Best effort: failures here only delay tasks
	_ = q.promoteDue(ctx)

	if task, err := q.claimAbandoned(ctx); err == nil && task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver loads the task behind a stream message and marks it processing.
// Messages without a task record are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.MarkProcessing()
	pipe := q.client.TxPipeline()
	if err := q.store(ctx, pipe, task); err != nil {
		return nil, err
	}
	pipe.Set(ctx, q.msgKey(task.ID), msg.ID, q.taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	return task, nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	pipe := q.client.Pipeline()
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, _ = pipe.Exec(ctx)
}

// promoteDue moves due delayed tasks to the stream. ZREM decides which
// consumer promotes a task, so concurrent consumers never add it twice.
func (q *Queue) promoteDue(ctx context.Context) error {
	ids, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayed, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, id)
		if err != nil {
			continue
		}
		err = q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: q.streamValues(task)}).Err()
		if err != nil {
			return err
		}
	}
	return nil
}

// claimAbandoned takes over a message another consumer left unacked for
// longer than claimAfter.
func (q *Queue) claimAbandoned(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimAfter,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.claimAfter,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.deliver(ctx, claimed[0])
		if err == nil && task != nil {
			return task, nil
		}
	}
	return nil, nil
}

// finish acks the stream message of a task and stores its new state
func (q *Queue) finish(ctx context.Context, task *domain.Task, requeue bool) error {
	msgID, err := q.client.Get(ctx, q.msgKey(task.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("get message id: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	if err := q.store(ctx, pipe, task); err != nil {
		return err
	}
	if requeue {
		pipe.ZAdd(ctx, q.delayed, redis.Z{
			Score:  float64(task.ScheduledFor.UnixMilli()),
			Member: task.ID,
		})
	}
	pipe.Del(ctx, q.msgKey(task.ID))
	_, err = pipe.Exec(ctx)
	return err
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	if err := q.finish(ctx, task, false); err != nil {
		return fmt.Errorf("ack task %s: %w", taskID, err)
	}
	return nil
}

// Nack puts the task back on the delayed set with backoff, or marks it
// failed when it has no attempts left.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	retry := task.CanRetry()
	if retry {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}
	if err := q.finish(ctx, task, retry); err != nil {
		return fmt.Errorf("nack task %s: %w", taskID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	if taskID == "" {
		return nil, domain.ErrNotFound
	}
	data, err := q.client.Get(ctx, q.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// all loads every indexed task; ids whose record expired leave the index
func (q *Queue) all(ctx context.Context) ([]*domain.Task, error) {
	ids, err := q.client.SMembers(ctx, q.index).Result()
	if err != nil {
		return nil, fmt.Errorf("read task index: %w", err)
	}
	tasks := make([]*domain.Task, 0, len(ids))
	var expired []any
	for _, id := range ids {
		task, err := q.GetTask(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if len(expired) > 0 {
		q.client.SRem(ctx, q.index, expired...)
	}
	return tasks, nil
}

// ListTasks returns matching tasks, newest first.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	tasks, err := q.all(ctx)
	if err != nil {
		return nil, err
	}

	var out []*domain.Task
	for _, task := range tasks {
		if filter.CorpusID != "" && task.CorpusID != filter.CorpusID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Task{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CancelTask fails a task that has not been delivered yet.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("cannot cancel %s task", task.Status)
	}

	task.MarkFailed("cancelled")
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.delayed, taskID)
	if err := q.store(ctx, pipe, task); err != nil {
		return err
	}
	_, err = pipe.Exec(ctx)
	return err
}

// PurgeTasks removes completed and failed tasks last updated before the cutoff.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := q.now().Add(-time.Duration(olderThanSeconds) * time.Second)
	tasks, err := q.all(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, task := range tasks {
		done := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if !done || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		pipe := q.client.TxPipeline()
		pipe.Del(ctx, q.taskKey(task.ID), q.msgKey(task.ID))
		pipe.SRem(ctx, q.index, task.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("purge task %s: %w", task.ID, err)
		}
		purged++
	}
	return purged, nil
}

// Stats counts indexed tasks by status.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	tasks, err := q.all(ctx)
	if err != nil {
		return nil, err
	}

	stats := &driven.QueueStats{}
	var oldest time.Time
	for _, task := range tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(q.now().Sub(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared with the lock.
func (q *Queue) Close() error {
	return nil
}
