package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// coordinator wires every service against in-memory mocks
type coordinator struct {
	clock     *fakeClock
	corpora   *mocks.MockCorpusStore
	artifacts *mocks.MockArtifactStore
	worker    *mocks.MockNumericWorker
	crawler   *mocks.MockCrawler
	source    *mocks.MockCrawlMetrics
	queue     *mocks.MockTaskQueue
	lock      *mocks.MockDistributedLock
	metrics   *metrics.Metrics

	guard      *AvailabilityGuard
	dispatcher *ComputeDispatcher
	integrity  *IntegrityPipeline
	monitor    *CrawlMonitor
	remover    *DocumentRemover
	features   *featureService
	corpusSvc  *corpusService
	callbacks  *callbackService
}

func newCoordinator() *coordinator {
	c := &coordinator{
		clock:     newFakeClock(),
		corpora:   mocks.NewMockCorpusStore(),
		artifacts: mocks.NewMockArtifactStore(),
		worker:    mocks.NewMockNumericWorker(),
		crawler:   mocks.NewMockCrawler(),
		source:    mocks.NewMockCrawlMetrics(),
		queue:     mocks.NewMockTaskQueue(),
		lock:      mocks.NewMockDistributedLock(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}

	cfg := domain.DefaultCoordinatorConfig()

	c.guard = NewAvailabilityGuard(AvailabilityGuardConfig{
		Corpora:        c.corpora,
		Artifacts:      c.artifacts,
		StaleLockAfter: cfg.StaleLockAfter,
		Now:            c.clock.Now,
		Metrics:        c.metrics,
	})
	c.dispatcher = NewComputeDispatcher(ComputeDispatcherConfig{
		Corpora:   c.corpora,
		Artifacts: c.artifacts,
		Worker:    c.worker,
		Lock:      c.lock,
		Now:       c.clock.Now,
		Metrics:   c.metrics,
	})
	c.integrity = NewIntegrityPipeline(IntegrityPipelineConfig{
		Corpora:   c.corpora,
		Artifacts: c.artifacts,
		Worker:    c.worker,
		Metrics:   c.metrics,
	})
	c.monitor = NewCrawlMonitor(CrawlMonitorConfig{
		Corpora:     c.corpora,
		Crawler:     c.crawler,
		Metrics:     c.source,
		TaskQueue:   c.queue,
		Integrity:   c.integrity,
		Coordinator: cfg,
		Now:         c.clock.Now,
		Collectors:  c.metrics,
	})
	c.remover = NewDocumentRemover(c.corpora, c.artifacts, c.integrity, nil)
	c.features = NewFeatureService(FeatureServiceConfig{
		Corpora:    c.corpora,
		Artifacts:  c.artifacts,
		Guard:      c.guard,
		Dispatcher: c.dispatcher,
	}).(*featureService)
	c.corpusSvc = NewCorpusService(CorpusServiceConfig{
		Corpora:   c.corpora,
		Artifacts: c.artifacts,
		TaskQueue: c.queue,
	}).(*corpusService)
	c.callbacks = NewCallbackService(c.corpora, c.integrity, c.metrics, nil).(*callbackService)
	return c
}

// seedCorpus stores a ready web corpus with the cat/dog texts
func (c *coordinator) seedCorpus() *domain.Corpus {
	corpus := catDogCorpus()
	corpus.Created = c.clock.Now()
	corpus.CrawlReady = true
	c.corpora.Put(corpus)
	return corpus
}
