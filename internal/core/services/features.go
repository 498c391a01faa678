package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
)

// Ensure featureService implements FeatureService
var _ driving.FeatureService = (*featureService)(nil)

// featureService implements the FeatureService interface
type featureService struct {
	corpora    driven.CorpusStore
	artifacts  driven.ArtifactStore
	guard      *AvailabilityGuard
	dispatcher *ComputeDispatcher
	newID      func() string
	logger     *slog.Logger
}

// FeatureServiceConfig holds configuration for the feature service.
type FeatureServiceConfig struct {
	Corpora    driven.CorpusStore
	Artifacts  driven.ArtifactStore
	Guard      *AvailabilityGuard
	Dispatcher *ComputeDispatcher
	NewID      func() string // graph node ids, default: uuid
	Logger     *slog.Logger
}

// NewFeatureService creates a new FeatureService
func NewFeatureService(cfg FeatureServiceConfig) driving.FeatureService {
	s := &featureService{
		corpora:    cfg.Corpora,
		artifacts:  cfg.Artifacts,
		guard:      cfg.Guard,
		dispatcher: cfg.Dispatcher,
		newID:      cfg.NewID,
		logger:     cfg.Logger,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CheckAvailability reports the state of one feature count
func (s *featureService) CheckAvailability(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error) {
	if featureCount < 1 {
		return nil, fmt.Errorf("%w: features must be positive", domain.ErrInvalidInput)
	}
	return s.guard.Check(ctx, corpusID, featureCount)
}

// RequestFeatures returns the feature view when it exists and requests it otherwise
func (s *featureService) RequestFeatures(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error) {
	return gate(ctx, s, params, s.featureView)
}

// RequestGraph returns the graph view when it exists and requests it otherwise
func (s *featureService) RequestGraph(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.Graph], error) {
	return gate(ctx, s, params, func(ctx context.Context, corpus *domain.Corpus, params domain.FeatureParams) (domain.Graph, error) {
		view, err := s.featureView(ctx, corpus, params)
		if err != nil {
			return domain.Graph{}, err
		}
		return BuildGraph(view, s.newID), nil
	})
}

// gate wraps a renderer with the availability check. Ready results are
// rendered; missing results are dispatched; anything else is reported busy.
func gate[T any](
	ctx context.Context,
	s *featureService,
	params domain.FeatureParams,
	render func(context.Context, *domain.Corpus, domain.FeatureParams) (T, error),
) (*domain.Gated[T], error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	corpus, err := s.corpora.Get(ctx, params.CorpusID)
	if err != nil {
		return nil, err
	}

	a := s.guard.CheckCorpus(ctx, corpus, params.Features)
	switch a.Kind {
	case domain.AvailabilityAvailable:
		v, err := render(ctx, corpus, params)
		if err != nil {
			return nil, err
		}
		return domain.Ready(a, v), nil
	case domain.AvailabilityBusy:
		return domain.Pending[T](domain.OutcomeBusy, a), nil
	}

	dispatched, err := s.dispatcher.Dispatch(ctx, params)
	if err != nil {
		return nil, err
	}
	a.Kind = domain.AvailabilityBusy
	if !dispatched {
		return domain.Pending[T](domain.OutcomeBusy, a), nil
	}
	return domain.Pending[T](domain.OutcomeDispatched, a), nil
}

func (s *featureService) featureView(ctx context.Context, corpus *domain.Corpus, params domain.FeatureParams) (domain.FeatureView, error) {
	f, err := s.artifacts.LoadFactorization(ctx, corpus.ID, params.Features)
	if err != nil {
		return domain.FeatureView{}, fmt.Errorf("load factorization: %w", err)
	}

	features, docs, err := Project(f, LimitsFrom(params))
	if err != nil {
		return domain.FeatureView{}, err
	}
	if err := Hydrate(corpus, features, docs); err != nil {
		s.logger.Error("feature result does not match corpus",
			"corpus_id", corpus.ID,
			"feature_count", params.Features,
			"error", err,
		)
		return domain.FeatureView{}, err
	}

	return domain.FeatureView{CorpusID: corpus.ID, Features: features, Docs: docs}, nil
}
