package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// ComputeDispatcher takes the status lock for a missing result and sends one
// compute request to the numeric worker.
//
// Same-key calls are collapsed in process and, when a DistributedLock is
// configured, across instances. Neither is required for correctness: the
// worker writes its result under the feature count, so a duplicate request
// only wastes work.
type ComputeDispatcher struct {
	corpora   driven.CorpusStore
	artifacts driven.ArtifactStore
	worker    driven.NumericWorker
	lock      driven.DistributedLock
	lockTTL   time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *slog.Logger

	group singleflight.Group
}

// ComputeDispatcherConfig holds configuration for the dispatcher.
type ComputeDispatcherConfig struct {
	Corpora   driven.CorpusStore
	Artifacts driven.ArtifactStore
	Worker    driven.NumericWorker
	Lock      driven.DistributedLock // Optional
	LockTTL   time.Duration          // default: 30s
	Now       func() time.Time
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewComputeDispatcher creates a new ComputeDispatcher.
func NewComputeDispatcher(cfg ComputeDispatcherConfig) *ComputeDispatcher {
	d := &ComputeDispatcher{
		corpora:   cfg.Corpora,
		artifacts: cfg.Artifacts,
		worker:    cfg.Worker,
		lock:      cfg.Lock,
		lockTTL:   cfg.LockTTL,
		now:       cfg.Now,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if d.lockTTL <= 0 {
		d.lockTTL = domain.DefaultCoordinatorConfig().DispatchLockTTL
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.metrics == nil {
		d.metrics = metrics.New(prometheus.NewRegistry())
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Dispatch requests the computation described by params. It returns false
// when another caller already holds the status lock for the feature count.
func (d *ComputeDispatcher) Dispatch(ctx context.Context, params domain.FeatureParams) (bool, error) {
	key := fmt.Sprintf("%s:%d", params.CorpusID, params.Features)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.dispatch(ctx, params)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *ComputeDispatcher) dispatch(ctx context.Context, params domain.FeatureParams) (bool, error) {
	logger := d.logger.With("corpus_id", params.CorpusID, "feature_count", params.Features)

	if d.lock != nil {
		name := fmt.Sprintf("compute:%s:%d", params.CorpusID, params.Features)
		acquired, err := d.lock.Acquire(ctx, name, d.lockTTL)
		switch {
		case err != nil:
			logger.Warn("dispatch lock unavailable, continuing without it", "error", err)
		case !acquired:
			logger.Debug("dispatch lock held by another instance")
			d.metrics.DispatchesTotal.WithLabelValues("", "busy").Inc()
			return false, nil
		default:
			defer func() {
				if err := d.lock.Release(ctx, name); err != nil {
					logger.Warn("failed to release dispatch lock", "error", err)
				}
			}()
		}
	}

	variant, payload := domain.ComputeMatrices, d.artifacts.CorpusPath(params.CorpusID)
	vectors, err := d.artifacts.VectorsExist(ctx, params.CorpusID)
	if err != nil {
		logger.Warn("vector probe failed, computing from raw text", "error", err)
	} else if vectors {
		variant, payload = domain.FactorizeMatrices, d.artifacts.VectorsPath(params.CorpusID)
	}

	taskID := uuid.NewString()
	status := domain.NewStatusLock(params.Features, string(variant), taskID, d.now())
	inserted, err := d.corpora.InsertLock(ctx, params.CorpusID, status)
	if err != nil {
		d.metrics.DispatchesTotal.WithLabelValues(string(variant), "error").Inc()
		return false, fmt.Errorf("insert status lock: %w", err)
	}
	if !inserted {
		d.metrics.DispatchesTotal.WithLabelValues(string(variant), "busy").Inc()
		return false, nil
	}

	req := domain.ComputeRequest{
		TaskID:         taskID,
		CorpusID:       params.CorpusID,
		Variant:        variant,
		FeatureCount:   params.Features,
		Words:          params.Words,
		DocsPerFeature: params.DocsPerFeature,
		FeaturesPerDoc: params.FeaturesPerDoc,
		Payload:        payload,
	}
	if variant == domain.FactorizeMatrices {
		err = d.worker.FactorizeMatrices(ctx, req)
	} else {
		err = d.worker.ComputeMatrices(ctx, req)
	}
	if err != nil {
		// Nothing will call back for this lock
		if delErr := d.corpora.DeleteLock(ctx, params.CorpusID, status); delErr != nil {
			logger.Error("failed to release status lock after publish error", "error", delErr)
		}
		d.metrics.DispatchesTotal.WithLabelValues(string(variant), "error").Inc()
		return false, fmt.Errorf("send %s request: %w", variant, err)
	}

	d.metrics.DispatchesTotal.WithLabelValues(string(variant), "dispatched").Inc()
	logger.Info("dispatched feature computation", "variant", variant, "task_id", taskID)
	return true, nil
}
