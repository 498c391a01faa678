package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

func TestAvailabilityGuard_Check(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setup      func(c *coordinator, corpusID string)
		wantKind   domain.AvailabilityKind
		wantCounts []int
	}{
		{
			name:     "nothing computed",
			setup:    func(c *coordinator, corpusID string) {},
			wantKind: domain.AvailabilityMissing,
		},
		{
			name: "computed",
			setup: func(c *coordinator, corpusID string) {
				c.artifacts.PutFactorization(corpusID, 10, catDogFactorization())
				c.artifacts.PutFactorization(corpusID, 5, catDogFactorization())
			},
			wantKind:   domain.AvailabilityAvailable,
			wantCounts: []int{5, 10},
		},
		{
			name: "other sizes only",
			setup: func(c *coordinator, corpusID string) {
				c.artifacts.PutFactorization(corpusID, 5, catDogFactorization())
			},
			wantKind:   domain.AvailabilityMissing,
			wantCounts: []int{5},
		},
		{
			name: "fresh lock",
			setup: func(c *coordinator, corpusID string) {
				_, _ = c.corpora.InsertLock(ctx, corpusID, domain.NewStatusLock(10, "compute_matrices", "t1", c.clock.Now().Add(-14*time.Minute)))
			},
			wantKind: domain.AvailabilityBusy,
		},
		{
			name: "lock for another feature count",
			setup: func(c *coordinator, corpusID string) {
				_, _ = c.corpora.InsertLock(ctx, corpusID, domain.NewStatusLock(20, "compute_matrices", "t1", c.clock.Now()))
			},
			wantKind: domain.AvailabilityMissing,
		},
		{
			name: "probe error",
			setup: func(c *coordinator, corpusID string) {
				c.artifacts.AvailableFeatureCountsFn = func(string) ([]int, error) {
					return nil, errors.New("disk gone")
				}
			},
			wantKind: domain.AvailabilityMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoordinator()
			corpus := c.seedCorpus()
			tt.setup(c, corpus.ID)

			a, err := c.guard.Check(ctx, corpus.ID, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, a.Kind)
			assert.Equal(t, 10, a.FeatureCount)
			if tt.wantCounts != nil {
				assert.Equal(t, tt.wantCounts, a.FeatureCounts)
			}
		})
	}
}

func TestAvailabilityGuard_PurgesStaleLock(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()
	corpus := c.seedCorpus()

	_, err := c.corpora.InsertLock(ctx, corpus.ID, domain.NewStatusLock(10, "compute_matrices", "t1", c.clock.Now()))
	require.NoError(t, err)

	c.clock.Advance(15 * time.Minute)

	a, err := c.guard.Check(ctx, corpus.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityMissing, a.Kind)

	_, held := c.corpora.Snapshot(corpus.ID).Lock(10)
	assert.False(t, held, "stale lock should be removed")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.StaleLocksPurged))

	// Never permanently busy: the next request dispatches again
	gated, err := c.features.RequestFeatures(ctx, domain.FeatureParams{CorpusID: corpus.ID, Features: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDispatched, gated.Outcome)
}

func TestAvailabilityGuard_PurgeKeepsReplacedLock(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()
	corpus := c.seedCorpus()

	// Another request purged the stale lock and dispatched again
	_, err := c.corpora.InsertLock(ctx, corpus.ID, domain.NewStatusLock(10, "compute_matrices", "t2", c.clock.Now()))
	require.NoError(t, err)

	// This check still sees the old snapshot
	seen := c.corpora.Snapshot(corpus.ID)
	seen.Status = []domain.StatusLock{domain.NewStatusLock(10, "compute_matrices", "t1", c.clock.Now().Add(-time.Hour))}

	a := c.guard.CheckCorpus(ctx, seen, 10)
	assert.Equal(t, domain.AvailabilityMissing, a.Kind)

	lock, held := c.corpora.Snapshot(corpus.ID).Lock(10)
	require.True(t, held, "fresh lock must survive the purge")
	assert.Equal(t, "t2", lock.TaskID)

	a2, err := c.guard.Check(ctx, corpus.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityBusy, a2.Kind)
}

func TestAvailabilityGuard_StaleLockWithResult(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()
	corpus := c.seedCorpus()
	c.artifacts.PutFactorization(corpus.ID, 10, catDogFactorization())

	_, _ = c.corpora.InsertLock(ctx, corpus.ID, domain.NewStatusLock(10, "compute_matrices", "t1", c.clock.Now().Add(-time.Hour)))

	a, err := c.guard.Check(ctx, corpus.ID, 10)
	require.NoError(t, err)
	assert.True(t, a.Available())
}

func TestAvailabilityGuard_NotFound(t *testing.T) {
	c := newCoordinator()
	_, err := c.guard.Check(context.Background(), "missing", 10)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
