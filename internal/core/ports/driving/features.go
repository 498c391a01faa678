package driving

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// FeatureService answers feature requests, dispatching the computation when
// the result does not exist yet
type FeatureService interface {
	// CheckAvailability reports whether a feature count is available, busy or missing
	CheckAvailability(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error)

	// RequestFeatures returns the ranked feature and document views
	RequestFeatures(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error)

	// RequestGraph returns the force-directed graph of the same result
	RequestGraph(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.Graph], error)
}
