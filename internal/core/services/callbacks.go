package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// Ensure callbackService implements CallbackService
var _ driving.CallbackService = (*callbackService)(nil)

// callbackService implements the CallbackService interface
type callbackService struct {
	corpora   driven.CorpusStore
	integrity *IntegrityPipeline
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewCallbackService creates a new CallbackService
func NewCallbackService(corpora driven.CorpusStore, integrity *IntegrityPipeline, m *metrics.Metrics, logger *slog.Logger) driving.CallbackService {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &callbackService{
		corpora:   corpora,
		integrity: integrity,
		metrics:   m,
		logger:    logger.With("component", "callbacks"),
	}
}

// ComputeCompleted releases the status lock. A failed computation leaves the
// result missing; the next request dispatches it again.
func (s *callbackService) ComputeCompleted(ctx context.Context, cb domain.ComputeCallback) error {
	if cb.CorpusID == "" || cb.FeatureCount < 1 {
		return fmt.Errorf("%w: corpus id and feature count are required", domain.ErrInvalidInput)
	}
	logger := s.logger.With("corpus_id", cb.CorpusID, "feature_count", cb.FeatureCount)

	if err := s.corpora.CompleteComputation(ctx, cb.CorpusID, cb.FeatureCount, cb.Success); err != nil {
		s.metrics.CallbacksTotal.WithLabelValues("compute", "error").Inc()
		return fmt.Errorf("complete computation: %w", err)
	}

	if !cb.Success {
		s.metrics.CallbacksTotal.WithLabelValues("compute", "failed").Inc()
		logger.Warn("feature computation failed", "error", cb.Error)
		return fmt.Errorf("%w: corpus %s features %d: %s", domain.ErrRemoteWorkerFailure, cb.CorpusID, cb.FeatureCount, cb.Error)
	}

	s.metrics.CallbacksTotal.WithLabelValues("compute", "ok").Inc()
	logger.Info("feature computation completed")
	return nil
}

// IntegrityCompleted marks the corpus ready again
func (s *callbackService) IntegrityCompleted(ctx context.Context, cb domain.IntegrityCallback) error {
	if cb.CorpusID == "" {
		return fmt.Errorf("%w: corpus id is required", domain.ErrInvalidInput)
	}
	if err := s.integrity.Complete(ctx, cb.CorpusID); err != nil {
		s.metrics.CallbacksTotal.WithLabelValues("integrity", "error").Inc()
		return err
	}
	s.metrics.CallbacksTotal.WithLabelValues("integrity", "ok").Inc()
	return nil
}

// FileExtracted records an extracted upload. The last expected file settles
// the corpus.
func (s *callbackService) FileExtracted(ctx context.Context, cb domain.FileExtractCallback) error {
	if cb.CorpusID == "" || cb.UniqueID == "" {
		return fmt.Errorf("%w: corpus id and unique id are required", domain.ErrInvalidInput)
	}
	logger := s.logger.With("corpus_id", cb.CorpusID, "unique_id", cb.UniqueID)

	if cb.Success && cb.DataID != "" {
		entry := domain.UrlEntry{
			DataID:   cb.DataID,
			FileID:   cb.FileID,
			Title:    cb.FileName,
			TextHash: cb.TextHash,
		}
		if err := s.corpora.PushURL(ctx, cb.CorpusID, entry); err != nil {
			s.metrics.CallbacksTotal.WithLabelValues("file_extract", "error").Inc()
			return fmt.Errorf("push url: %w", err)
		}
	} else {
		logger.Warn("file extraction failed", "file_name", cb.FileName)
	}

	remaining, pulled, err := s.corpora.PullExpectedFile(ctx, cb.CorpusID, cb.UniqueID)
	if err != nil {
		s.metrics.CallbacksTotal.WithLabelValues("file_extract", "error").Inc()
		return fmt.Errorf("pull expected file: %w", err)
	}
	if !pulled {
		s.metrics.CallbacksTotal.WithLabelValues("file_extract", "duplicate").Inc()
		logger.Debug("file was not expected, callback already applied")
		return nil
	}
	s.metrics.CallbacksTotal.WithLabelValues("file_extract", "ok").Inc()

	if remaining > 0 {
		logger.Debug("file extracted", "remaining", remaining)
		return nil
	}
	logger.Info("all uploads extracted")
	return s.integrity.Settle(ctx, cb.CorpusID)
}
