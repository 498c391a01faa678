package driven

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// ArtifactStore gives access to the files shared with the numeric worker:
// raw texts, base vectors and one factorization per feature count.
type ArtifactStore interface {
	// AvailableFeatureCounts returns, sorted ascending, the feature counts
	// whose factorization is complete.
	AvailableFeatureCounts(ctx context.Context, corpusID string) ([]int, error)

	// VectorsExist reports whether the base vectors have been computed.
	VectorsExist(ctx context.Context, corpusID string) (bool, error)

	// MatrixExists reports whether any numeric artifact exists for the corpus.
	MatrixExists(ctx context.Context, corpusID string) (bool, error)

	// LoadFactorization reads the matrices for one feature count.
	// Returns domain.ErrNotFound when they are missing.
	LoadFactorization(ctx context.Context, corpusID string, featureCount int) (*domain.Factorization, error)

	// CorpusPath is the reference sent to the worker to read raw texts.
	CorpusPath(corpusID string) string

	// VectorsPath is the reference sent to the worker to reuse base vectors.
	VectorsPath(corpusID string) string

	// RemoveTexts deletes raw text files; missing files are ignored.
	RemoveTexts(ctx context.Context, corpusID string, fileIDs []string) error
}
