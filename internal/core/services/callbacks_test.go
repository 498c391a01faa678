package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

func TestCallbacks_ComputeCompleted(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name             string
		success          bool
		integrityRunning bool
		wantErr          error
		wantCrawlReady   bool
	}{
		{name: "success", success: true, wantCrawlReady: true},
		{name: "success during integrity check", success: true, integrityRunning: true, wantCrawlReady: false},
		{name: "failure", success: false, wantErr: domain.ErrRemoteWorkerFailure, wantCrawlReady: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoordinator()
			corpus := newCrawlingCorpus(c)
			if tt.integrityRunning {
				require.NoError(t, c.corpora.StartIntegrityCheck(ctx, corpus.ID))
			}
			_, _ = c.corpora.InsertLock(ctx, corpus.ID, domain.NewStatusLock(10, "compute_matrices", "t1", c.clock.Now()))

			err := c.callbacks.ComputeCompleted(ctx, domain.ComputeCallback{CorpusID: corpus.ID, FeatureCount: 10, Success: tt.success, Error: "oom"})
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}

			stored := c.corpora.Snapshot(corpus.ID)
			_, held := stored.Lock(10)
			assert.False(t, held, "the lock is cleared either way")
			assert.Equal(t, tt.wantCrawlReady, stored.CrawlReady)
			assert.False(t, stored.CrawlReady && stored.IntegrityCheckInProgress)
		})
	}
}

func TestCallbacks_FailedComputeIsRedispatched(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()
	corpus := c.seedCorpus()
	params := domain.FeatureParams{CorpusID: corpus.ID, Features: 10}

	_, err := c.features.RequestFeatures(ctx, params)
	require.NoError(t, err)
	_ = c.callbacks.ComputeCompleted(ctx, domain.ComputeCallback{CorpusID: corpus.ID, FeatureCount: 10})

	gated, err := c.features.RequestFeatures(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDispatched, gated.Outcome)
	assert.Len(t, c.worker.ComputeRequests(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.CallbacksTotal.WithLabelValues("compute", "failed")))
}

func TestCallbacks_FileExtracted(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()

	corpus := domain.NewCorpus("papers", "", domain.DataSourceFiles)
	corpus.ExpectedFiles = []domain.ExpectedFile{
		{FileName: "a.pdf", UniqueID: "u1"},
		{FileName: "b.pdf", UniqueID: "u2"},
	}
	c.corpora.Put(corpus)

	require.NoError(t, c.callbacks.FileExtracted(ctx, domain.FileExtractCallback{
		CorpusID: corpus.ID, DataID: "d1", FileID: "f1", FileName: "a.pdf", UniqueID: "u1", TextHash: "h1", Success: true,
	}))

	stored := c.corpora.Snapshot(corpus.ID)
	require.Len(t, stored.URLs, 1)
	assert.Equal(t, domain.UrlEntry{DataID: "d1", FileID: "f1", Title: "a.pdf", TextHash: "h1"}, stored.URLs[0])
	assert.Len(t, stored.ExpectedFiles, 1)
	assert.False(t, stored.CrawlReady)

	// A failed extraction still settles the expected set
	require.NoError(t, c.callbacks.FileExtracted(ctx, domain.FileExtractCallback{
		CorpusID: corpus.ID, FileName: "b.pdf", UniqueID: "u2", Success: false,
	}))

	stored = c.corpora.Snapshot(corpus.ID)
	assert.Len(t, stored.URLs, 1)
	assert.Empty(t, stored.ExpectedFiles)
	assert.True(t, stored.CrawlReady, "no matrices yet, so the corpus is ready right away")
	assert.Empty(t, c.worker.IntegrityRequests())
}

func TestCallbacks_FileExtractedWithMatrices(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()

	corpus := domain.NewCorpus("papers", "", domain.DataSourceFiles)
	corpus.ExpectedFiles = []domain.ExpectedFile{{FileName: "a.pdf", UniqueID: "u1"}}
	c.corpora.Put(corpus)
	c.artifacts.SetMatrix(corpus.ID, true)

	require.NoError(t, c.callbacks.FileExtracted(ctx, domain.FileExtractCallback{
		CorpusID: corpus.ID, DataID: "d1", FileID: "f1", FileName: "a.pdf", UniqueID: "u1", Success: true,
	}))

	assert.Len(t, c.worker.IntegrityRequests(), 1)
	assert.True(t, c.corpora.Snapshot(corpus.ID).IntegrityCheckInProgress)
}

func TestCallbacks_FileExtractedRedelivered(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()

	corpus := domain.NewCorpus("papers", "", domain.DataSourceFiles)
	corpus.ExpectedFiles = []domain.ExpectedFile{{FileName: "a.pdf", UniqueID: "u1"}}
	c.corpora.Put(corpus)
	c.artifacts.SetMatrix(corpus.ID, true)

	cb := domain.FileExtractCallback{CorpusID: corpus.ID, DataID: "d1", FileID: "f1", FileName: "a.pdf", UniqueID: "u1", Success: true}
	require.NoError(t, c.callbacks.FileExtracted(ctx, cb))
	require.NoError(t, c.callbacks.FileExtracted(ctx, cb))

	assert.Len(t, c.worker.IntegrityRequests(), 1, "a redelivered callback must not settle again")
	assert.Equal(t, 1, c.corpora.IntegrityStarts)
}

func TestCallbacks_InvalidInput(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator()

	assert.True(t, errors.Is(c.callbacks.ComputeCompleted(ctx, domain.ComputeCallback{}), domain.ErrInvalidInput))
	assert.True(t, errors.Is(c.callbacks.IntegrityCompleted(ctx, domain.IntegrityCallback{}), domain.ErrInvalidInput))
	assert.True(t, errors.Is(c.callbacks.FileExtracted(ctx, domain.FileExtractCallback{CorpusID: "c"}), domain.ErrInvalidInput))
	assert.True(t, errors.Is(c.callbacks.ComputeCompleted(ctx, domain.ComputeCallback{CorpusID: "missing", FeatureCount: 1, Success: true}), domain.ErrNotFound))
}
