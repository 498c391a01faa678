package services

import "github.com/custodia-labs/corpus-core/internal/core/domain"

// BuildGraph turns a feature view into graph nodes and links. Each document
// is grouped under its strongest feature and linked to all of its top
// features.
func BuildGraph(view domain.FeatureView, newID func() string) domain.Graph {
	g := domain.Graph{
		CorpusID: view.CorpusID,
		Nodes:    make([]domain.GraphNode, 0, len(view.Features)+len(view.Docs)),
		Links:    []domain.GraphLink{},
	}

	featureNodes := make(map[int]string, len(view.Features))
	for _, f := range view.Features {
		id := newID()
		featureNodes[f.ID] = id
		g.Nodes = append(g.Nodes, domain.NewFeatureNode(id, f))
	}

	for _, d := range view.Docs {
		id := newID()
		group := id
		if len(d.TopFeatures) > 0 {
			group = featureNodes[d.TopFeatures[0].FeatureID]
		}
		g.Nodes = append(g.Nodes, domain.NewDocumentNode(id, group, d))

		for _, tf := range d.TopFeatures {
			g.Links = append(g.Links, domain.GraphLink{
				Source: id,
				Target: featureNodes[tf.FeatureID],
				Weight: tf.Weight,
			})
		}
	}

	return g
}
