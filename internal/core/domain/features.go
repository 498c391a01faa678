package domain

import "fmt"

// Defaults applied to feature requests that leave a parameter unset
const (
	DefaultFeatureCount   = 10
	DefaultWordsPerFeat   = 10
	DefaultDocsPerFeature = 5
	DefaultFeaturesPerDoc = 3
)

// FeatureParams identifies a feature computation and how its views are cut
type FeatureParams struct {
	CorpusID       string `json:"corpus_id"`
	Features       int    `json:"features"`
	Words          int    `json:"words"`
	DocsPerFeature int    `json:"docs_per_feature"`
	FeaturesPerDoc int    `json:"features_per_doc"`
}

// WithDefaults fills unset parameters
func (p FeatureParams) WithDefaults() FeatureParams {
	if p.Features == 0 {
		p.Features = DefaultFeatureCount
	}
	if p.Words == 0 {
		p.Words = DefaultWordsPerFeat
	}
	if p.DocsPerFeature == 0 {
		p.DocsPerFeature = DefaultDocsPerFeature
	}
	if p.FeaturesPerDoc == 0 {
		p.FeaturesPerDoc = DefaultFeaturesPerDoc
	}
	return p
}

// Validate checks the parameters after defaults are applied
func (p FeatureParams) Validate() error {
	if p.CorpusID == "" {
		return fmt.Errorf("%w: corpus id is required", ErrInvalidInput)
	}
	if p.Features < 1 {
		return fmt.Errorf("%w: features must be positive", ErrInvalidInput)
	}
	if p.Words < 1 || p.DocsPerFeature < 1 || p.FeaturesPerDoc < 1 {
		return fmt.Errorf("%w: words, docs per feature and features per doc must be positive", ErrInvalidInput)
	}
	return nil
}

// AvailabilityKind is the closed set of answers to an availability check
type AvailabilityKind int

const (
	AvailabilityMissing AvailabilityKind = iota
	AvailabilityAvailable
	AvailabilityBusy
)

func (k AvailabilityKind) String() string {
	switch k {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityBusy:
		return "busy"
	default:
		return "missing"
	}
}

// Availability is the result of checking one (corpus, feature count) pair.
// FeatureCounts lists every feature count with complete matrices.
type Availability struct {
	CorpusID      string           `json:"corpus_id"`
	FeatureCount  int              `json:"feature_count"`
	Kind          AvailabilityKind `json:"-"`
	FeatureCounts []int            `json:"feature_counts"`
}

// Available reports whether the requested result can be read
func (a Availability) Available() bool { return a.Kind == AvailabilityAvailable }

// Busy reports whether a fresh lock guards the requested result
func (a Availability) Busy() bool { return a.Kind == AvailabilityBusy }

// FeatureWord is a vocabulary term with its weight in a feature
type FeatureWord struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// FeatureDoc is a document attached to a feature
type FeatureDoc struct {
	DataID string  `json:"data_id"`
	Weight float64 `json:"weight"`
	Title  string  `json:"title"`
	URL    string  `json:"url,omitempty"`
	FileID string  `json:"file_id,omitempty"`
}

// Feature is one row of the factorization, ranked and hydrated
type Feature struct {
	ID     int           `json:"id"`
	Weight float64       `json:"weight"`
	Words  []FeatureWord `json:"words"`
	Docs   []FeatureDoc  `json:"docs"`
}

// DocFeature is a feature attached to a document
type DocFeature struct {
	FeatureID int           `json:"feature"`
	Weight    float64       `json:"weight"`
	Words     []FeatureWord `json:"words"`
}

// Document is one column of the factorization, ranked and hydrated
type Document struct {
	DataID      string       `json:"data_id"`
	Title       string       `json:"title"`
	URL         string       `json:"url,omitempty"`
	FileID      string       `json:"file_id,omitempty"`
	TopFeatures []DocFeature `json:"features"`
}

// FeatureView is the ready result of a feature request
type FeatureView struct {
	CorpusID string     `json:"corpus_id"`
	Features []Feature  `json:"features"`
	Docs     []Document `json:"docs"`
}

// Factorization holds the matrices written by the numeric worker for one
// feature count. Weights is documents x features, Features is features x
// vocabulary.
type Factorization struct {
	Weights    [][]float64 `json:"weights"`
	Features   [][]float64 `json:"features"`
	Vocabulary []string    `json:"vocabulary"`
	DocIDs     []string    `json:"doc_ids"`
}

// Validate checks that the matrix shapes agree with each other
func (f *Factorization) Validate() error {
	if len(f.Weights) != len(f.DocIDs) {
		return fmt.Errorf("%w: %d weight rows for %d documents", ErrInvalidInput, len(f.Weights), len(f.DocIDs))
	}
	k := len(f.Features)
	for i, row := range f.Weights {
		if len(row) != k {
			return fmt.Errorf("%w: weight row %d has %d columns, want %d", ErrInvalidInput, i, len(row), k)
		}
	}
	for i, row := range f.Features {
		if len(row) != len(f.Vocabulary) {
			return fmt.Errorf("%w: feature row %d has %d columns, want %d", ErrInvalidInput, i, len(row), len(f.Vocabulary))
		}
	}
	return nil
}

// Outcome tags a gated result
type Outcome string

const (
	OutcomeReady      Outcome = "ready"
	OutcomeBusy       Outcome = "busy"
	OutcomeDispatched Outcome = "dispatched"
)

// Gated is the answer to a request that depends on a computed result.
// Value is only set when Outcome is OutcomeReady.
type Gated[T any] struct {
	Outcome      Outcome      `json:"outcome"`
	Availability Availability `json:"availability"`
	Value        T            `json:"value,omitempty"`
}

// Ready wraps a computed value
func Ready[T any](a Availability, v T) *Gated[T] {
	return &Gated[T]{Outcome: OutcomeReady, Availability: a, Value: v}
}

// Pending builds a non-ready result
func Pending[T any](outcome Outcome, a Availability) *Gated[T] {
	return &Gated[T]{Outcome: outcome, Availability: a}
}
