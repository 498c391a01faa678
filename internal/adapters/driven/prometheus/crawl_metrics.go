// Package prometheus reads crawl activity from the Prometheus server the
// crawler reports to.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CrawlMetricsSource = (*CrawlMetrics)(nil)

// MetricNames are the crawler series, each labelled with the corpus id
type MetricNames struct {
	// LastActivity is a gauge holding the unix time of the last request
	LastActivity string
	Successes    string
	Exceptions   string
	// CorpusLabel is the label carrying the corpus id
	CorpusLabel string
}

// DefaultMetricNames returns the series names the crawler exports
func DefaultMetricNames() MetricNames {
	return MetricNames{
		LastActivity: "crawler_last_activity_timestamp_seconds",
		Successes:    "crawler_requests_success_total",
		Exceptions:   "crawler_requests_exception_total",
		CorpusLabel:  "corpus_id",
	}
}

// CrawlMetrics implements driven.CrawlMetricsSource with instant queries
// against the Prometheus HTTP API.
type CrawlMetrics struct {
	api     v1.API
	names   MetricNames
	timeout time.Duration
	logger  *slog.Logger
}

// Config configures CrawlMetrics
type Config struct {
	// Address is the Prometheus base url, e.g. http://prometheus:9090
	Address string
	Names   MetricNames
	// Timeout bounds each query (default 5s)
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewCrawlMetrics creates a client for cfg.Address
func NewCrawlMetrics(cfg Config) (*CrawlMetrics, error) {
	if cfg.Address == "" {
		return nil, errors.New("prometheus address is required")
	}
	client, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}

	names := cfg.Names
	d := DefaultMetricNames()
	if names.LastActivity == "" {
		names.LastActivity = d.LastActivity
	}
	if names.Successes == "" {
		names.Successes = d.Successes
	}
	if names.Exceptions == "" {
		names.Exceptions = d.Exceptions
	}
	if names.CorpusLabel == "" {
		names.CorpusLabel = d.CorpusLabel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CrawlMetrics{
		api:     v1.NewAPI(client),
		names:   names,
		timeout: timeout,
		logger:  logger.With("component", "crawl-metrics"),
	}, nil
}

// CrawlMetrics returns nil, nil when the crawler has not reported the corpus yet
func (c *CrawlMetrics) CrawlMetrics(ctx context.Context, corpusID string) (*domain.CrawlMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	last, ok, err := c.scalar(ctx, c.names.LastActivity, corpusID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	successes, _, err := c.scalar(ctx, c.names.Successes, corpusID)
	if err != nil {
		return nil, err
	}
	exceptions, _, err := c.scalar(ctx, c.names.Exceptions, corpusID)
	if err != nil {
		return nil, err
	}

	sec, frac := math.Modf(last)
	return &domain.CrawlMetrics{
		LastActivity:   time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		SuccessCount:   int64(successes),
		ExceptionCount: int64(exceptions),
	}, nil
}

// selector builds `max(metric{label="id"})`, merging series from several
// crawler instances.
func (c *CrawlMetrics) selector(metric, corpusID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(corpusID)
	return fmt.Sprintf(`max(%s{%s="%s"})`, metric, c.names.CorpusLabel, escaped)
}

func (c *CrawlMetrics) scalar(ctx context.Context, metric, corpusID string) (float64, bool, error) {
	query := c.selector(metric, corpusID)
	value, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, false, fmt.Errorf("query %s: %w", metric, err)
	}
	if len(warnings) > 0 {
		c.logger.Warn("prometheus query warnings", "query", query, "warnings", warnings)
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return 0, false, fmt.Errorf("query %s: unexpected result type %s", metric, value.Type())
	}
	if len(vector) == 0 {
		return 0, false, nil
	}
	return float64(vector[0].Value), true, nil
}
