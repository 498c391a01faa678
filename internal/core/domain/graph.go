package domain

import "encoding/json"

// NodeKind tags a graph node
type NodeKind string

const (
	NodeFeature  NodeKind = "feature"
	NodeDocument NodeKind = "document"
)

// GraphNode is either a feature or a document. The kind is fixed at
// construction and exactly one of Feature or Document is set.
type GraphNode struct {
	ID       string
	Group    string
	Kind     NodeKind
	Feature  *Feature
	Document *Document
}

// NewFeatureNode builds a feature node grouped under its own id
func NewFeatureNode(id string, f Feature) GraphNode {
	return GraphNode{ID: id, Group: id, Kind: NodeFeature, Feature: &f}
}

// NewDocumentNode builds a document node grouped under its top feature
func NewDocumentNode(id, group string, d Document) GraphNode {
	return GraphNode{ID: id, Group: group, Kind: NodeDocument, Document: &d}
}

type featureNodeJSON struct {
	ID     string        `json:"id"`
	Group  string        `json:"group"`
	Type   NodeKind      `json:"type"`
	Weight float64       `json:"weight"`
	Words  []FeatureWord `json:"words"`
}

type documentNodeJSON struct {
	ID     string   `json:"id"`
	Group  string   `json:"group"`
	Type   NodeKind `json:"type"`
	Title  string   `json:"title"`
	URL    string   `json:"url,omitempty"`
	DataID string   `json:"data_id"`
	FileID string   `json:"file_id,omitempty"`
}

// MarshalJSON flattens the node payload next to its id and group
func (n GraphNode) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NodeFeature:
		return json.Marshal(featureNodeJSON{
			ID:     n.ID,
			Group:  n.Group,
			Type:   n.Kind,
			Weight: n.Feature.Weight,
			Words:  n.Feature.Words,
		})
	default:
		return json.Marshal(documentNodeJSON{
			ID:     n.ID,
			Group:  n.Group,
			Type:   n.Kind,
			Title:  n.Document.Title,
			URL:    n.Document.URL,
			DataID: n.Document.DataID,
			FileID: n.Document.FileID,
		})
	}
}

// GraphLink connects a document node to one of its features
type GraphLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Graph is the force-directed view of a feature result
type Graph struct {
	CorpusID string      `json:"corpus_id"`
	Nodes    []GraphNode `json:"nodes"`
	Links    []GraphLink `json:"links"`
}
