package services

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// ProjectionLimits cuts the ranked lists of a projection
type ProjectionLimits struct {
	Words          int
	DocsPerFeature int
	FeaturesPerDoc int
}

// LimitsFrom extracts the projection limits of a feature request
func LimitsFrom(p domain.FeatureParams) ProjectionLimits {
	return ProjectionLimits{
		Words:          p.Words,
		DocsPerFeature: p.DocsPerFeature,
		FeaturesPerDoc: p.FeaturesPerDoc,
	}
}

type ranked struct {
	weight float64
	index  int
}

// rankDesc orders by weight, highest first, keeping matrix order on ties.
// A negative keep returns everything.
func rankDesc(weights []float64, keep int) []ranked {
	out := make([]ranked, len(weights))
	for i, w := range weights {
		out[i] = ranked{weight: w, index: i}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].weight > out[b].weight })
	if keep >= 0 && keep < len(out) {
		out = out[:keep]
	}
	return out
}

// Project turns a factorization into the feature and document views. Document
// references carry only the data id and weight; Hydrate fills in the rest.
//
// Features are returned sorted by the weight of their highest word, documents
// in matrix order.
func Project(f *domain.Factorization, limits ProjectionLimits) ([]domain.Feature, []domain.Document, error) {
	if err := f.Validate(); err != nil {
		return nil, nil, err
	}

	features := make([]domain.Feature, len(f.Features))
	for i, row := range f.Features {
		words := make([]domain.FeatureWord, 0, limits.Words)
		for _, r := range rankDesc(row, limits.Words) {
			words = append(words, domain.FeatureWord{Word: f.Vocabulary[r.index], Weight: r.weight})
		}

		column := make([]float64, len(f.Weights))
		for j := range f.Weights {
			column[j] = f.Weights[j][i]
		}
		docs := make([]domain.FeatureDoc, 0, limits.DocsPerFeature)
		for _, r := range rankDesc(column, limits.DocsPerFeature) {
			docs = append(docs, domain.FeatureDoc{DataID: f.DocIDs[r.index], Weight: r.weight})
		}

		var top float64
		if len(words) > 0 {
			top = words[0].Weight
		}
		features[i] = domain.Feature{ID: i, Weight: top, Words: words, Docs: docs}
	}

	documents := make([]domain.Document, len(f.Weights))
	for j, row := range f.Weights {
		top := make([]domain.DocFeature, 0, limits.FeaturesPerDoc)
		for _, r := range rankDesc(row, limits.FeaturesPerDoc) {
			top = append(top, domain.DocFeature{
				FeatureID: r.index,
				Weight:    r.weight,
				Words:     features[r.index].Words,
			})
		}
		documents[j] = domain.Document{DataID: f.DocIDs[j], TopFeatures: top}
	}

	sort.SliceStable(features, func(a, b int) bool { return features[a].Weight > features[b].Weight })

	return features, documents, nil
}

// Hydrate resolves every document reference against the corpus url entries.
// A reference the corpus does not know aborts with ErrUnknownDocumentReference.
func Hydrate(corpus *domain.Corpus, features []domain.Feature, documents []domain.Document) error {
	for i := range features {
		for k := range features[i].Docs {
			d := &features[i].Docs[k]
			entry, ok := corpus.FindDocument(d.DataID)
			if !ok {
				return fmt.Errorf("%w: %s in corpus %s", domain.ErrUnknownDocumentReference, d.DataID, corpus.ID)
			}
			d.DataID = entry.DataID
			d.Title = entry.Title
			d.URL = entry.URL
			d.FileID = entry.FileID
		}
	}
	for j := range documents {
		d := &documents[j]
		entry, ok := corpus.FindDocument(d.DataID)
		if !ok {
			return fmt.Errorf("%w: %s in corpus %s", domain.ErrUnknownDocumentReference, d.DataID, corpus.ID)
		}
		d.DataID = entry.DataID
		d.Title = entry.Title
		d.URL = entry.URL
		d.FileID = entry.FileID
	}
	return nil
}
