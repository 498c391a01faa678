package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// recorder implements every handler the worker routes to
type recorder struct {
	mu        sync.Mutex
	crawls    []domain.CrawlRequest
	polls     []int
	checks    []string
	deletions map[string][]string
	err       error
}

func newRecorder() *recorder {
	return &recorder{deletions: make(map[string][]string)}
}

func (r *recorder) StartCrawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crawls = append(r.crawls, req)
	return domain.CrawlDispatched, r.err
}

func (r *recorder) Poll(ctx context.Context, corpusID string, iteration int) (domain.CrawlState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, iteration)
	return domain.CrawlPolling, r.err
}

func (r *recorder) Start(ctx context.Context, corpusID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, corpusID)
	return r.err
}

func (r *recorder) RemoveDocuments(ctx context.Context, corpusID string, dataIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletions[corpusID] = dataIDs
	return r.err
}

func newTestWorker(queue *mocks.MockTaskQueue, rec *recorder, m *metrics.Metrics) *Worker {
	return NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Crawls:         rec,
		Integrity:      rec,
		Remover:        rec,
		Metrics:        m,
		Concurrency:    1,
		DequeueTimeout: 1,
	})
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: mocks.NewMockTaskQueue()})

	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, 5, w.dequeueTimeout)
	assert.NotNil(t, w.logger)
	assert.NotNil(t, w.metrics)
}

func TestNewWorker_CustomConfig(t *testing.T) {
	w := NewWorker(WorkerConfig{
		TaskQueue:      mocks.NewMockTaskQueue(),
		Concurrency:    4,
		DequeueTimeout: 10,
	})

	assert.Equal(t, 4, w.concurrency)
	assert.Equal(t, 10, w.dequeueTimeout)
}

func TestWorker_StartStop(t *testing.T) {
	w := newTestWorker(mocks.NewMockTaskQueue(), newRecorder(), nil)

	require.NoError(t, w.Start(context.Background()))
	// Second start is a no-op
	require.NoError(t, w.Start(context.Background()))

	health := w.Health(context.Background())
	assert.True(t, health.Running)

	w.Stop()
	health = w.Health(context.Background())
	assert.False(t, health.Running)

	// Second stop is a no-op
	w.Stop()
}

func TestWorker_ContextCancellation(t *testing.T) {
	w := newTestWorker(mocks.NewMockTaskQueue(), newRecorder(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorker_Health(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := newTestWorker(queue, newRecorder(), nil)

	health := w.Health(context.Background())
	assert.True(t, health.QueueHealth)
	assert.Empty(t, health.Error)

	queue.PingFn = func() error { return errors.New("redis down") }
	health = w.Health(context.Background())
	assert.False(t, health.QueueHealth)
	assert.Equal(t, "redis down", health.Error)
}

func TestWorker_ProcessTask_Routing(t *testing.T) {
	tests := []struct {
		name  string
		task  *domain.Task
		check func(t *testing.T, rec *recorder)
	}{
		{
			name: "start crawl",
			task: domain.NewStartCrawlTask("c1", []string{"https://a.example", "https://b.example"}, 2),
			check: func(t *testing.T, rec *recorder) {
				require.Len(t, rec.crawls, 1)
				assert.Equal(t, domain.CrawlRequest{
					CorpusID: "c1",
					URLs:     []string{"https://a.example", "https://b.example"},
					Depth:    2,
				}, rec.crawls[0])
			},
		},
		{
			name: "monitor crawl",
			task: domain.NewMonitorCrawlTask("c1", 7, 0),
			check: func(t *testing.T, rec *recorder) {
				assert.Equal(t, []int{7}, rec.polls)
			},
		},
		{
			name: "integrity check",
			task: domain.NewIntegrityCheckTask("c1"),
			check: func(t *testing.T, rec *recorder) {
				assert.Equal(t, []string{"c1"}, rec.checks)
			},
		},
		{
			name: "delete documents",
			task: domain.NewDeleteDocumentsTask("c1", []string{"d1", "d2"}),
			check: func(t *testing.T, rec *recorder) {
				assert.Equal(t, []string{"d1", "d2"}, rec.deletions["c1"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := mocks.NewMockTaskQueue()
			rec := newRecorder()
			m := metrics.New(prometheus.NewRegistry())
			w := newTestWorker(queue, rec, m)

			w.processTask(context.Background(), tt.task, w.logger)

			tt.check(t, rec)
			assert.Equal(t, []string{tt.task.ID}, queue.Acked())
			assert.Equal(t, 1.0, testutil.ToFloat64(
				m.TasksProcessed.WithLabelValues(string(tt.task.Type), "completed")))
		})
	}
}

func TestWorker_ProcessTask_PurgeTasks(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	var olderThan int
	queue.PurgeFn = func(n int) (int, error) {
		olderThan = n
		return 12, nil
	}
	w := newTestWorker(queue, newRecorder(), nil)

	task := domain.NewPurgeTasksTask(24 * time.Hour)
	w.processTask(context.Background(), task, w.logger)

	assert.Equal(t, 86400, olderThan)
	assert.Equal(t, []string{task.ID}, queue.Acked())
}

func TestWorker_ProcessTask_HandlerErrorNacks(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	rec := newRecorder()
	rec.err = errors.New("publish failed")
	m := metrics.New(prometheus.NewRegistry())
	w := newTestWorker(queue, rec, m)

	task := domain.NewIntegrityCheckTask("c1")
	require.NoError(t, queue.Enqueue(context.Background(), task))
	w.processTask(context.Background(), task, w.logger)

	reason, ok := queue.NackReason(task.ID)
	require.True(t, ok)
	assert.Equal(t, "publish failed", reason)
	assert.Empty(t, queue.Acked())
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.TasksProcessed.WithLabelValues(string(domain.TaskTypeIntegrityCheck), "failed")))
}

func TestWorker_ProcessTask_MissingArguments(t *testing.T) {
	tests := []struct {
		name string
		task *domain.Task
	}{
		{"start crawl without urls", domain.NewStartCrawlTask("c1", nil, 0)},
		{"start crawl without corpus", domain.NewStartCrawlTask("", []string{"https://a.example"}, 0)},
		{"monitor without corpus", domain.NewMonitorCrawlTask("", 0, 0)},
		{"integrity without corpus", domain.NewIntegrityCheckTask("")},
		{"delete without ids", domain.NewDeleteDocumentsTask("c1", nil)},
		{"purge without retention", domain.NewPurgeTasksTask(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := mocks.NewMockTaskQueue()
			rec := newRecorder()
			w := newTestWorker(queue, rec, nil)

			w.processTask(context.Background(), tt.task, w.logger)

			_, nacked := queue.NackReason(tt.task.ID)
			assert.True(t, nacked)
			assert.Empty(t, rec.crawls)
			assert.Empty(t, rec.polls)
			assert.Empty(t, rec.checks)
			assert.Empty(t, rec.deletions)
		})
	}
}

func TestWorker_ProcessTask_UnknownType(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := newTestWorker(queue, newRecorder(), nil)

	task := domain.NewTask("reindex_everything", "c1", nil)
	w.processTask(context.Background(), task, w.logger)

	reason, ok := queue.NackReason(task.ID)
	require.True(t, ok)
	assert.Contains(t, reason, "unknown task type")
}

func TestWorker_ProcessesQueuedTasks(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	rec := newRecorder()
	w := newTestWorker(queue, rec, nil)

	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, domain.NewIntegrityCheckTask("c1")))
	require.NoError(t, queue.Enqueue(ctx, domain.NewMonitorCrawlTask("c2", 3, 0)))

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return len(queue.Acked()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"c1"}, rec.checks)
	assert.Equal(t, []int{3}, rec.polls)
}
