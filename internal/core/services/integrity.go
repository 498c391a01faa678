package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// IntegrityPipeline sequences the remote integrity check of a corpus and
// flips its ready flags. It performs no local computation.
type IntegrityPipeline struct {
	corpora   driven.CorpusStore
	artifacts driven.ArtifactStore
	worker    driven.NumericWorker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// IntegrityPipelineConfig holds configuration for the pipeline.
type IntegrityPipelineConfig struct {
	Corpora   driven.CorpusStore
	Artifacts driven.ArtifactStore
	Worker    driven.NumericWorker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewIntegrityPipeline creates a new IntegrityPipeline.
func NewIntegrityPipeline(cfg IntegrityPipelineConfig) *IntegrityPipeline {
	p := &IntegrityPipeline{
		corpora:   cfg.Corpora,
		artifacts: cfg.Artifacts,
		worker:    cfg.Worker,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if p.metrics == nil {
		p.metrics = metrics.New(prometheus.NewRegistry())
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "integrity")
	return p
}

// Start marks the check in progress and asks the worker to run it. If the
// request cannot be sent the in-progress flag is cleared again so that a
// retry can start over.
func (p *IntegrityPipeline) Start(ctx context.Context, corpusID string) error {
	if err := p.corpora.StartIntegrityCheck(ctx, corpusID); err != nil {
		return fmt.Errorf("start integrity check: %w", err)
	}

	req := domain.IntegrityRequest{CorpusID: corpusID, Path: p.artifacts.CorpusPath(corpusID)}
	if err := p.worker.IntegrityCheck(ctx, req); err != nil {
		if abortErr := p.corpora.AbortIntegrityCheck(ctx, corpusID); abortErr != nil {
			p.logger.Error("failed to clear integrity flag", "corpus_id", corpusID, "error", abortErr)
		}
		p.metrics.IntegrityChecks.WithLabelValues("failed").Inc()
		return fmt.Errorf("send integrity request: %w", err)
	}

	p.metrics.IntegrityChecks.WithLabelValues("started").Inc()
	p.logger.Info("integrity check started", "corpus_id", corpusID)
	return nil
}

// Complete applies the worker's report. Applying it twice is harmless.
func (p *IntegrityPipeline) Complete(ctx context.Context, corpusID string) error {
	if err := p.corpora.CompleteIntegrityCheck(ctx, corpusID); err != nil {
		return fmt.Errorf("complete integrity check: %w", err)
	}
	p.metrics.IntegrityChecks.WithLabelValues("completed").Inc()
	p.logger.Info("integrity check completed", "corpus_id", corpusID)
	return nil
}

// Settle runs after the document set of a corpus changed: existing matrices
// are checked again, otherwise the corpus is ready unless a check is still
// running.
func (p *IntegrityPipeline) Settle(ctx context.Context, corpusID string) error {
	exists, err := p.artifacts.MatrixExists(ctx, corpusID)
	if err != nil {
		return fmt.Errorf("probe matrices: %w", err)
	}
	if exists {
		return p.Start(ctx, corpusID)
	}
	if err := p.corpora.SettleIngestion(ctx, corpusID); err != nil {
		return fmt.Errorf("settle ingestion: %w", err)
	}
	return nil
}
