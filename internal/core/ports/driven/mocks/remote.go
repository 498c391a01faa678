package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

var (
	_ driven.NumericWorker      = (*MockNumericWorker)(nil)
	_ driven.Crawler            = (*MockCrawler)(nil)
	_ driven.CrawlMetricsSource = (*MockCrawlMetrics)(nil)
)

// MockNumericWorker records the requests sent to the numeric worker
type MockNumericWorker struct {
	mu         sync.Mutex
	compute    []domain.ComputeRequest
	integrity  []domain.IntegrityRequest
	PublishErr error
}

// NewMockNumericWorker creates a new MockNumericWorker
func NewMockNumericWorker() *MockNumericWorker {
	return &MockNumericWorker{}
}

func (m *MockNumericWorker) ComputeMatrices(ctx context.Context, req domain.ComputeRequest) error {
	return m.recordCompute(req)
}

func (m *MockNumericWorker) FactorizeMatrices(ctx context.Context, req domain.ComputeRequest) error {
	return m.recordCompute(req)
}

func (m *MockNumericWorker) IntegrityCheck(ctx context.Context, req domain.IntegrityRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.integrity = append(m.integrity, req)
	return nil
}

func (m *MockNumericWorker) recordCompute(req domain.ComputeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.compute = append(m.compute, req)
	return nil
}

// ComputeRequests returns the compute requests sent so far
func (m *MockNumericWorker) ComputeRequests() []domain.ComputeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ComputeRequest(nil), m.compute...)
}

// IntegrityRequests returns the integrity requests sent so far
func (m *MockNumericWorker) IntegrityRequests() []domain.IntegrityRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IntegrityRequest(nil), m.integrity...)
}

// MockCrawler records crawl requests
type MockCrawler struct {
	mu       sync.Mutex
	requests []domain.CrawlRequest
	Err      error
}

// NewMockCrawler creates a new MockCrawler
func NewMockCrawler() *MockCrawler {
	return &MockCrawler{}
}

func (m *MockCrawler) StartCrawl(ctx context.Context, req domain.CrawlRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.requests = append(m.requests, req)
	return nil
}

// Requests returns the crawl requests sent so far
func (m *MockCrawler) Requests() []domain.CrawlRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CrawlRequest(nil), m.requests...)
}

// MockCrawlMetrics serves fixed crawl metrics per corpus
type MockCrawlMetrics struct {
	mu      sync.RWMutex
	metrics map[string]domain.CrawlMetrics

	CrawlMetricsFn func(corpusID string) (*domain.CrawlMetrics, error)
}

// NewMockCrawlMetrics creates a new MockCrawlMetrics
func NewMockCrawlMetrics() *MockCrawlMetrics {
	return &MockCrawlMetrics{metrics: make(map[string]domain.CrawlMetrics)}
}

// Set stores the metrics returned for a corpus (test setup)
func (m *MockCrawlMetrics) Set(corpusID string, metrics domain.CrawlMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[corpusID] = metrics
}

func (m *MockCrawlMetrics) CrawlMetrics(ctx context.Context, corpusID string) (*domain.CrawlMetrics, error) {
	if m.CrawlMetricsFn != nil {
		return m.CrawlMetricsFn(corpusID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	metrics, ok := m.metrics[corpusID]
	if !ok {
		return nil, nil
	}
	return &metrics, nil
}
