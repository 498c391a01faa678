package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

var _ driven.ArtifactStore = (*MockArtifactStore)(nil)

// MockArtifactStore is an in-memory ArtifactStore
type MockArtifactStore struct {
	mu             sync.RWMutex
	factorizations map[string]map[int]*domain.Factorization
	vectors        map[string]bool
	matrices       map[string]bool
	removed        map[string][]string

	// Custom behavior hooks (optional)
	AvailableFeatureCountsFn func(corpusID string) ([]int, error)
	RemoveTextsFn            func(corpusID string, fileIDs []string) error
}

// NewMockArtifactStore creates a new MockArtifactStore
func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{
		factorizations: make(map[string]map[int]*domain.Factorization),
		vectors:        make(map[string]bool),
		matrices:       make(map[string]bool),
		removed:        make(map[string][]string),
	}
}

// PutFactorization stores the matrices for a feature count (test setup)
func (m *MockArtifactStore) PutFactorization(corpusID string, featureCount int, f *domain.Factorization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.factorizations[corpusID] == nil {
		m.factorizations[corpusID] = make(map[int]*domain.Factorization)
	}
	m.factorizations[corpusID][featureCount] = f
	m.vectors[corpusID] = true
	m.matrices[corpusID] = true
}

// SetVectors marks base vectors as present (test setup)
func (m *MockArtifactStore) SetVectors(corpusID string, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[corpusID] = present
	if present {
		m.matrices[corpusID] = true
	}
}

// SetMatrix marks the matrix directory as present (test setup)
func (m *MockArtifactStore) SetMatrix(corpusID string, present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[corpusID] = present
}

// RemovedTexts returns the file ids passed to RemoveTexts (test assertions)
func (m *MockArtifactStore) RemovedTexts(corpusID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.removed[corpusID]...)
}

func (m *MockArtifactStore) AvailableFeatureCounts(ctx context.Context, corpusID string) ([]int, error) {
	if m.AvailableFeatureCountsFn != nil {
		return m.AvailableFeatureCountsFn(corpusID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counts []int
	for n := range m.factorizations[corpusID] {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	return counts, nil
}

func (m *MockArtifactStore) VectorsExist(ctx context.Context, corpusID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vectors[corpusID], nil
}

func (m *MockArtifactStore) MatrixExists(ctx context.Context, corpusID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matrices[corpusID], nil
}

func (m *MockArtifactStore) LoadFactorization(ctx context.Context, corpusID string, featureCount int) (*domain.Factorization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factorizations[corpusID][featureCount]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f, nil
}

func (m *MockArtifactStore) CorpusPath(corpusID string) string {
	return fmt.Sprintf("/data/%s", corpusID)
}

func (m *MockArtifactStore) VectorsPath(corpusID string) string {
	return fmt.Sprintf("/data/%s/matrix/vectors.npy", corpusID)
}

func (m *MockArtifactStore) RemoveTexts(ctx context.Context, corpusID string, fileIDs []string) error {
	if m.RemoveTextsFn != nil {
		return m.RemoveTextsFn(corpusID, fileIDs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed[corpusID] = append(m.removed[corpusID], fileIDs...)
	return nil
}
