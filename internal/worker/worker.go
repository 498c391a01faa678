package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/services"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// CrawlRunner starts crawls and runs crawl polls (services.CrawlMonitor)
type CrawlRunner interface {
	StartCrawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlState, error)
	Poll(ctx context.Context, corpusID string, iteration int) (domain.CrawlState, error)
}

// IntegrityStarter starts integrity checks (services.IntegrityPipeline)
type IntegrityStarter interface {
	Start(ctx context.Context, corpusID string) error
}

// DocumentRemover removes documents (services.DocumentRemover)
type DocumentRemover interface {
	RemoveDocuments(ctx context.Context, corpusID string, dataIDs []string) error
}

// Worker drains the task queue with a fixed pool of goroutines and, when
// configured, runs the maintenance scheduler next to it.
type Worker struct {
	taskQueue driven.TaskQueue
	scheduler *services.Scheduler
	metrics   *metrics.Metrics
	logger    *slog.Logger
	handlers  map[domain.TaskType]taskHandler

	concurrency    int
	dequeueTimeout int // seconds

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type taskHandler func(ctx context.Context, task *domain.Task, logger *slog.Logger) error

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Crawls         CrawlRunner
	Integrity      IntegrityStarter
	Remover        DocumentRemover
	Scheduler      *services.Scheduler // Optional
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Concurrency    int // default: 1
	DequeueTimeout int // seconds, default: 5
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		taskQueue:      cfg.TaskQueue,
		scheduler:      cfg.Scheduler,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		concurrency:    max(cfg.Concurrency, 1),
		dequeueTimeout: cfg.DequeueTimeout,
		done:           make(chan struct{}),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = metrics.New(prometheus.NewRegistry())
	}
	if w.dequeueTimeout <= 0 {
		w.dequeueTimeout = 5
	}
	close(w.done)

	crawls, integrity, remover := cfg.Crawls, cfg.Integrity, cfg.Remover
	w.handlers = map[domain.TaskType]taskHandler{
		domain.TaskTypeStartCrawl: func(ctx context.Context, t *domain.Task, _ *slog.Logger) error {
			return handleStartCrawl(ctx, crawls, t)
		},
		domain.TaskTypeMonitorCrawl: func(ctx context.Context, t *domain.Task, _ *slog.Logger) error {
			return handleMonitorCrawl(ctx, crawls, t)
		},
		domain.TaskTypeIntegrityCheck: func(ctx context.Context, t *domain.Task, _ *slog.Logger) error {
			return handleIntegrityCheck(ctx, integrity, t)
		},
		domain.TaskTypeDeleteDocuments: func(ctx context.Context, t *domain.Task, _ *slog.Logger) error {
			return handleDeleteDocuments(ctx, remover, t)
		},
		domain.TaskTypePurgeTasks: w.handlePurgeTasks,
	}
	return w
}

// Start launches the processing goroutines and returns. The pool stops when
// ctx ends or Stop is called; a task already claimed still runs to the end
// with ctx.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("worker starting", "concurrency", w.concurrency, "dequeue_timeout", w.dequeueTimeout)

	if w.scheduler != nil {
		if err := w.scheduler.Start(loopCtx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(loopCtx, ctx, i)
		}()
	}
	go func(done chan struct{}) {
		wg.Wait()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
	}(w.done)

	return nil
}

// Stop cancels the pool and waits for in-flight tasks.
func (w *Worker) Stop() {
	w.mu.RLock()
	running, cancel, done := w.running, w.cancel, w.done
	w.mu.RUnlock()
	if !running {
		return
	}

	cancel()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	<-done
	w.logger.Info("worker stopped")
}

// Wait blocks until the pool has exited.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.done
	w.mu.RUnlock()
	<-done
}

// processLoop claims tasks until loopCtx ends. Claimed tasks run with taskCtx
// so that Stop does not abort them halfway.
func (w *Worker) processLoop(loopCtx, taskCtx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")
	defer logger.Debug("worker goroutine exited")

	for loopCtx.Err() == nil {
		task, err := w.taskQueue.DequeueWithTimeout(loopCtx, w.dequeueTimeout)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		case err != nil:
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-loopCtx.Done():
			case <-time.After(time.Second):
			}
			continue
		case task == nil:
			continue
		}
		w.processTask(taskCtx, task, logger)
	}
}

// processTask runs one task and acks or nacks it.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "corpus_id", task.CorpusID)
	logger.Debug("processing task")

	start := time.Now()
	err := fmt.Errorf("unknown task type: %s", task.Type)
	if handle, ok := w.handlers[task.Type]; ok {
		err = handle(ctx, task, logger)
	}
	duration := time.Since(start)
	w.metrics.TaskDuration.WithLabelValues(string(task.Type)).Observe(duration.Seconds())

	if err != nil {
		w.metrics.TasksProcessed.WithLabelValues(string(task.Type), "failed").Inc()
		logger.Error("task failed", "duration", duration, "error", err)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	w.metrics.TasksProcessed.WithLabelValues(string(task.Type), "completed").Inc()
	logger.Debug("task completed", "duration", duration)
	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

func handleStartCrawl(ctx context.Context, crawls CrawlRunner, task *domain.Task) error {
	if task.CorpusID == "" {
		return fmt.Errorf("corpus_id missing from start_crawl task")
	}
	urls := task.URLs()
	if len(urls) == 0 {
		return fmt.Errorf("urls missing from start_crawl task")
	}
	_, err := crawls.StartCrawl(ctx, domain.CrawlRequest{
		CorpusID: task.CorpusID,
		URLs:     urls,
		Depth:    task.Depth(),
	})
	return err
}

func handleMonitorCrawl(ctx context.Context, crawls CrawlRunner, task *domain.Task) error {
	if task.CorpusID == "" {
		return fmt.Errorf("corpus_id missing from monitor_crawl task")
	}
	_, err := crawls.Poll(ctx, task.CorpusID, task.Iteration())
	return err
}

func handleIntegrityCheck(ctx context.Context, integrity IntegrityStarter, task *domain.Task) error {
	if task.CorpusID == "" {
		return fmt.Errorf("corpus_id missing from integrity_check task")
	}
	return integrity.Start(ctx, task.CorpusID)
}

func handleDeleteDocuments(ctx context.Context, remover DocumentRemover, task *domain.Task) error {
	ids := task.DataIDs()
	if task.CorpusID == "" || len(ids) == 0 {
		return fmt.Errorf("corpus_id or data_ids missing from delete_documents task")
	}
	return remover.RemoveDocuments(ctx, task.CorpusID, ids)
}

func (w *Worker) handlePurgeTasks(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	retention := task.Retention()
	if retention <= 0 {
		return fmt.Errorf("retention missing from purge_tasks task")
	}
	n, err := w.taskQueue.PurgeTasks(ctx, int(retention.Seconds()))
	if err != nil {
		return err
	}
	logger.Info("purged finished tasks", "count", n, "retention", retention)
	return nil
}

// Health is the worker status reported to operators
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	health := Health{Running: w.running, QueueHealth: true}
	w.mu.RUnlock()

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	}
	return health
}
