package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// CrawlMonitor sends crawl requests and polls the metrics source until the
// crawler has been idle long enough, then hands the corpus to the integrity
// pipeline.
//
// Each poll is a delayed monitor_crawl task; the iteration count travels in
// the task payload. After MaxIterations polls the monitor gives up and the
// corpus stays not ready until a crawl or integrity check is triggered again.
type CrawlMonitor struct {
	corpora   driven.CorpusStore
	crawler   driven.Crawler
	source    driven.CrawlMetricsSource
	taskQueue driven.TaskQueue
	integrity *IntegrityPipeline
	cfg       domain.CoordinatorConfig
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// CrawlMonitorConfig holds configuration for the monitor.
type CrawlMonitorConfig struct {
	Corpora     driven.CorpusStore
	Crawler     driven.Crawler
	Metrics     driven.CrawlMetricsSource
	TaskQueue   driven.TaskQueue
	Integrity   *IntegrityPipeline
	Coordinator domain.CoordinatorConfig
	Now         func() time.Time
	Collectors  *metrics.Metrics
	Logger      *slog.Logger
}

// NewCrawlMonitor creates a new CrawlMonitor.
func NewCrawlMonitor(cfg CrawlMonitorConfig) *CrawlMonitor {
	m := &CrawlMonitor{
		corpora:   cfg.Corpora,
		crawler:   cfg.Crawler,
		source:    cfg.Metrics,
		taskQueue: cfg.TaskQueue,
		integrity: cfg.Integrity,
		cfg:       cfg.Coordinator.WithDefaults(),
		now:       cfg.Now,
		metrics:   cfg.Collectors,
		logger:    cfg.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.metrics == nil {
		m.metrics = metrics.New(prometheus.NewRegistry())
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "crawl_monitor")
	return m
}

// StartCrawl sends the crawl request and schedules the first poll. A corpus
// that already holds CorpusMaxSize texts is refused without error.
func (m *CrawlMonitor) StartCrawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlState, error) {
	logger := m.logger.With("corpus_id", req.CorpusID)

	count, err := m.corpora.CountURLs(ctx, req.CorpusID)
	if err != nil {
		return "", fmt.Errorf("count urls: %w", err)
	}
	if count >= m.cfg.CorpusMaxSize {
		logger.Warn("crawl refused", "url_count", count, "max", m.cfg.CorpusMaxSize, "reason", domain.ErrCorpusFull)
		m.metrics.CrawlPollsTotal.WithLabelValues(string(domain.CrawlRefused)).Inc()
		return domain.CrawlRefused, nil
	}

	if err := m.crawler.StartCrawl(ctx, req); err != nil {
		return "", fmt.Errorf("send crawl request: %w", err)
	}

	poll := domain.NewMonitorCrawlTask(req.CorpusID, 0, m.cfg.StartDelay)
	if err := m.taskQueue.Enqueue(ctx, poll); err != nil {
		return "", fmt.Errorf("schedule crawl poll: %w", err)
	}

	logger.Info("crawl dispatched", "urls", len(req.URLs), "depth", req.Depth, "first_poll", poll.ScheduledFor)
	return domain.CrawlDispatched, nil
}

// Poll runs one readiness check. iteration counts the polls already made.
func (m *CrawlMonitor) Poll(ctx context.Context, corpusID string, iteration int) (domain.CrawlState, error) {
	logger := m.logger.With("corpus_id", corpusID, "iteration", iteration)

	state, err := m.poll(ctx, corpusID, iteration, logger)
	if err != nil {
		return "", err
	}
	m.metrics.CrawlPollsTotal.WithLabelValues(string(state)).Inc()
	return state, nil
}

func (m *CrawlMonitor) poll(ctx context.Context, corpusID string, iteration int, logger *slog.Logger) (domain.CrawlState, error) {
	if m.Ready(ctx, corpusID) {
		status, err := m.corpora.GetStatus(ctx, corpusID)
		if err != nil {
			return "", fmt.Errorf("load corpus status: %w", err)
		}
		if status.IntegrityCheckInProgress {
			logger.Info("crawl finished, integrity check already running")
			return domain.CrawlReady, nil
		}
		if err := m.integrity.Start(ctx, corpusID); err != nil {
			return "", err
		}
		logger.Info("crawl finished")
		return domain.CrawlReady, nil
	}

	next := iteration + 1
	if next >= m.cfg.MaxIterations {
		logger.Warn("crawl monitor gave up", "max_iterations", m.cfg.MaxIterations)
		return domain.CrawlGaveUp, nil
	}

	if err := m.taskQueue.Enqueue(ctx, domain.NewMonitorCrawlTask(corpusID, next, m.cfg.PollCountdown)); err != nil {
		return "", fmt.Errorf("schedule crawl poll: %w", err)
	}
	logger.Debug("crawl still active")
	return domain.CrawlPolling, nil
}

// Ready reports whether the crawler has gone quiet for the corpus. A corpus
// without any metrics never produced a page and is ready immediately.
func (m *CrawlMonitor) Ready(ctx context.Context, corpusID string) bool {
	cm, err := m.source.CrawlMetrics(ctx, corpusID)
	if err != nil {
		m.logger.Warn("crawl metrics unavailable", "corpus_id", corpusID, "error", err)
		return false
	}
	if cm == nil {
		return true
	}
	return cm.IdleFor(m.now()) > m.cfg.IdleThreshold
}
