package domain

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeStartCrawl sends a crawl request and starts monitoring it
	TaskTypeStartCrawl TaskType = "start_crawl"
	// TaskTypeMonitorCrawl runs one crawl readiness poll
	TaskTypeMonitorCrawl TaskType = "monitor_crawl"
	// TaskTypeIntegrityCheck starts the integrity pipeline for a corpus
	TaskTypeIntegrityCheck TaskType = "integrity_check"
	// TaskTypeDeleteDocuments removes texts from a corpus
	TaskTypeDeleteDocuments TaskType = "delete_documents"
	// TaskTypePurgeTasks removes old finished tasks from the queue
	TaskTypePurgeTasks TaskType = "purge_tasks"
)

// Payload keys
const (
	payloadURLs      = "urls"
	payloadDepth     = "depth"
	payloadIteration = "iteration"
	payloadDataIDs   = "data_ids"
	payloadRetention = "retention_seconds"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	// CorpusID is the corpus the task works on; empty for maintenance tasks
	CorpusID string `json:"corpus_id"`

	// Payload holds task-specific arguments, see the New*Task constructors
	Payload map[string]string `json:"payload"`

	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, corpusID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		CorpusID:     corpusID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewStartCrawlTask creates a task that crawls urls from corpusID
func NewStartCrawlTask(corpusID string, urls []string, depth int) *Task {
	return NewTask(TaskTypeStartCrawl, corpusID, map[string]string{
		payloadURLs:  strings.Join(urls, "\n"),
		payloadDepth: strconv.Itoa(depth),
	})
}

// NewMonitorCrawlTask creates a poll that runs after delay. Polls are not
// retried; the monitor schedules its own next iteration.
func NewMonitorCrawlTask(corpusID string, iteration int, delay time.Duration) *Task {
	t := NewTask(TaskTypeMonitorCrawl, corpusID, map[string]string{
		payloadIteration: strconv.Itoa(iteration),
	})
	t.MaxAttempts = 1
	t.ScheduledFor = t.CreatedAt.Add(delay)
	return t
}

// NewIntegrityCheckTask creates a task that starts the integrity pipeline
func NewIntegrityCheckTask(corpusID string) *Task {
	return NewTask(TaskTypeIntegrityCheck, corpusID, nil)
}

// NewDeleteDocumentsTask creates a task that removes a set of documents
func NewDeleteDocumentsTask(corpusID string, dataIDs []string) *Task {
	return NewTask(TaskTypeDeleteDocuments, corpusID, map[string]string{
		payloadDataIDs: strings.Join(dataIDs, ","),
	})
}

// NewPurgeTasksTask creates a task removing finished tasks older than retention
func NewPurgeTasksTask(retention time.Duration) *Task {
	return NewTask(TaskTypePurgeTasks, "", map[string]string{
		payloadRetention: strconv.Itoa(int(retention.Seconds())),
	})
}

func (t *Task) payload(key string) string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[key]
}

func (t *Task) payloadInt(key string) int {
	n, err := strconv.Atoi(t.payload(key))
	if err != nil {
		return 0
	}
	return n
}

// URLs extracts the crawl seeds (start_crawl)
func (t *Task) URLs() []string {
	return splitNonEmpty(t.payload(payloadURLs), "\n")
}

// Depth extracts the crawl depth (start_crawl)
func (t *Task) Depth() int {
	return t.payloadInt(payloadDepth)
}

// Iteration extracts the poll counter (monitor_crawl)
func (t *Task) Iteration() int {
	return t.payloadInt(payloadIteration)
}

// DataIDs extracts the documents to delete (delete_documents)
func (t *Task) DataIDs() []string {
	return splitNonEmpty(t.payload(payloadDataIDs), ",")
}

// Retention extracts the purge window (purge_tasks)
func (t *Task) Retention() time.Duration {
	return time.Duration(t.payloadInt(payloadRetention)) * time.Second
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.Error = err
}

// RetryBackoff is the delay before the next attempt: 1s, 2s, 4s ... capped at 5m
func (t *Task) RetryBackoff() time.Duration {
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err
	t.ScheduledFor = now.Add(t.RetryBackoff())
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      TaskType      `json:"type"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	LastError string        `json:"last_error,omitempty"`

	// Retention is passed to purge_tasks runs
	Retention time.Duration `json:"retention,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && !time.Now().Before(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// NewTask builds the queue task for one run of a schedule
func (s *ScheduledTask) NewTask() *Task {
	if s.Type == TaskTypePurgeTasks {
		return NewPurgeTasksTask(s.Retention)
	}
	return NewTask(s.Type, "", nil)
}

// DefaultSchedules returns the built-in maintenance schedules
func DefaultSchedules(purgeInterval, retention time.Duration) []*ScheduledTask {
	purge := NewScheduledTask("task-purge", "Task Purge", TaskTypePurgeTasks, purgeInterval)
	purge.Retention = retention
	return []*ScheduledTask{purge}
}
