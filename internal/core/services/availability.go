package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/metrics"
)

// AvailabilityGuard decides whether a (corpus, feature count) result is
// available, being computed, or missing.
//
// The only write it performs is the removal of a stale status lock; a lock
// that outlived StaleLockAfter belongs to a computation that will never
// report back.
type AvailabilityGuard struct {
	corpora    driven.CorpusStore
	artifacts  driven.ArtifactStore
	staleAfter time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// AvailabilityGuardConfig holds configuration for the guard.
type AvailabilityGuardConfig struct {
	Corpora        driven.CorpusStore
	Artifacts      driven.ArtifactStore
	StaleLockAfter time.Duration    // default: 15m
	Now            func() time.Time // default: time.Now
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// NewAvailabilityGuard creates a new AvailabilityGuard.
func NewAvailabilityGuard(cfg AvailabilityGuardConfig) *AvailabilityGuard {
	g := &AvailabilityGuard{
		corpora:    cfg.Corpora,
		artifacts:  cfg.Artifacts,
		staleAfter: cfg.StaleLockAfter,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
	if g.staleAfter <= 0 {
		g.staleAfter = domain.DefaultCoordinatorConfig().StaleLockAfter
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.metrics == nil {
		g.metrics = metrics.New(prometheus.NewRegistry())
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "availability")
	return g
}

// Check loads the corpus and checks one feature count.
// Returns domain.ErrNotFound when the corpus does not exist.
func (g *AvailabilityGuard) Check(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error) {
	corpus, err := g.corpora.Get(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	a := g.CheckCorpus(ctx, corpus, featureCount)
	return &a, nil
}

// CheckCorpus checks one feature count of an already loaded corpus.
func (g *AvailabilityGuard) CheckCorpus(ctx context.Context, corpus *domain.Corpus, featureCount int) domain.Availability {
	a := domain.Availability{CorpusID: corpus.ID, FeatureCount: featureCount}

	if lock, ok := corpus.Lock(featureCount); ok && lock.Busy {
		if !lock.IsStale(g.now(), g.staleAfter) {
			a.Kind = domain.AvailabilityBusy
			g.metrics.AvailabilityChecks.WithLabelValues(a.Kind.String()).Inc()
			return a
		}
		g.purge(ctx, corpus.ID, lock)
	}

	counts, err := g.artifacts.AvailableFeatureCounts(ctx, corpus.ID)
	if err != nil {
		// Not computed yet as far as the caller is concerned
		g.logger.Debug("feature count probe failed", "corpus_id", corpus.ID, "error", err)
		counts = nil
	}
	a.FeatureCounts = counts
	if slices.Contains(counts, featureCount) {
		a.Kind = domain.AvailabilityAvailable
	} else {
		a.Kind = domain.AvailabilityMissing
	}
	g.metrics.AvailabilityChecks.WithLabelValues(a.Kind.String()).Inc()
	return a
}

func (g *AvailabilityGuard) purge(ctx context.Context, corpusID string, lock domain.StatusLock) {
	logger := g.logger.With(
		"corpus_id", corpusID,
		"feature_count", lock.FeatureCount,
		"task_id", lock.TaskID,
		"age", lock.Age(g.now()),
	)
	if err := g.corpora.DeleteLock(ctx, corpusID, lock); err != nil {
		logger.Warn("failed to purge stale lock", "error", err)
		return
	}
	g.metrics.StaleLocksPurged.Inc()
	logger.Info("purged stale lock", "reason", domain.ErrStaleLock)
}
