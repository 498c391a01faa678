package driving

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// CallbackService applies the reports of remote workers
type CallbackService interface {
	// ComputeCompleted releases the status lock of a finished factorization.
	// Returns domain.ErrRemoteWorkerFailure when the worker reported failure.
	ComputeCompleted(ctx context.Context, cb domain.ComputeCallback) error

	// IntegrityCompleted marks the corpus ready again
	IntegrityCompleted(ctx context.Context, cb domain.IntegrityCallback) error

	// FileExtracted records an extracted upload
	FileExtracted(ctx context.Context, cb domain.FileExtractCallback) error
}
