package driven

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// NumericWorker sends fire-and-forget requests to the remote numeric worker.
// Results come back through the callback service.
type NumericWorker interface {
	// ComputeMatrices asks for base vectors and a factorization from raw text.
	ComputeMatrices(ctx context.Context, req domain.ComputeRequest) error

	// FactorizeMatrices asks for a factorization from existing base vectors.
	FactorizeMatrices(ctx context.Context, req domain.ComputeRequest) error

	// IntegrityCheck asks the worker to reconcile artifacts with the corpus.
	IntegrityCheck(ctx context.Context, req domain.IntegrityRequest) error
}

// Crawler sends crawl requests to the remote crawler.
type Crawler interface {
	StartCrawl(ctx context.Context, req domain.CrawlRequest) error
}

// CrawlMetricsSource reports crawl activity for a corpus.
type CrawlMetricsSource interface {
	// CrawlMetrics returns nil, nil when no metrics exist for the corpus.
	CrawlMetrics(ctx context.Context, corpusID string) (*domain.CrawlMetrics, error)
}
