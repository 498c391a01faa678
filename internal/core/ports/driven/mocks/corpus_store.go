package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

var _ driven.CorpusStore = (*MockCorpusStore)(nil)

// MockCorpusStore is an in-memory CorpusStore. Each method holds the mutex for
// its whole update, matching the single-statement atomicity of the real store.
type MockCorpusStore struct {
	mu      sync.RWMutex
	corpora map[string]*domain.Corpus

	// Counters for assertions
	IntegrityStarts int
	LockInserts     int

	// Custom behavior hooks (optional)
	GetFn        func(id string) (*domain.Corpus, error)
	InsertLockFn func(corpusID string, lock domain.StatusLock) (bool, error)
}

// NewMockCorpusStore creates a new MockCorpusStore
func NewMockCorpusStore() *MockCorpusStore {
	return &MockCorpusStore{corpora: make(map[string]*domain.Corpus)}
}

// Put stores a copy of c (test setup)
func (m *MockCorpusStore) Put(c *domain.Corpus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corpora[c.ID] = cloneCorpus(c)
}

// Snapshot returns a copy of the stored corpus, or nil (test assertions)
func (m *MockCorpusStore) Snapshot(id string) *domain.Corpus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corpora[id]
	if !ok {
		return nil
	}
	return cloneCorpus(c)
}

func (m *MockCorpusStore) Create(ctx context.Context, corpus *domain.Corpus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corpora[corpus.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.corpora[corpus.ID] = cloneCorpus(corpus)
	return nil
}

func (m *MockCorpusStore) Get(ctx context.Context, id string) (*domain.Corpus, error) {
	if m.GetFn != nil {
		return m.GetFn(id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corpora[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCorpus(c), nil
}

func (m *MockCorpusStore) GetStatus(ctx context.Context, id string) (*domain.CorpusStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corpora[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	status := c.StatusFlags()
	return &status, nil
}

func (m *MockCorpusStore) List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	opts = opts.Normalize()

	var all []*domain.Corpus
	for _, c := range m.corpora {
		if opts.ReadyOnly && !c.CrawlReady {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Created.After(all[j].Created) })

	if opts.Offset >= len(all) {
		return []*domain.Corpus{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}

	out := make([]*domain.Corpus, 0, len(all))
	for _, c := range all {
		cp := cloneCorpus(c)
		if len(cp.URLs) > domain.SummaryTextLimit {
			cp.URLs = cp.URLs[:domain.SummaryTextLimit]
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *MockCorpusStore) CountURLs(ctx context.Context, id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corpora[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return len(c.URLs), nil
}

func (m *MockCorpusStore) InsertLock(ctx context.Context, corpusID string, lock domain.StatusLock) (bool, error) {
	if m.InsertLockFn != nil {
		return m.InsertLockFn(corpusID, lock)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if _, exists := c.Lock(lock.FeatureCount); exists {
		return false, nil
	}
	c.Status = append(c.Status, lock)
	m.LockInserts++
	return true, nil
}

func (m *MockCorpusStore) DeleteLock(ctx context.Context, corpusID string, lock domain.StatusLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored, exists := c.Lock(lock.FeatureCount); exists && stored.TaskID == lock.TaskID {
		c.Status = withoutLock(c.Status, lock.FeatureCount)
	}
	return nil
}

func (m *MockCorpusStore) CompleteComputation(ctx context.Context, corpusID string, featureCount int, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = withoutLock(c.Status, featureCount)
	if succeeded && !c.IntegrityCheckInProgress {
		c.CrawlReady = true
	}
	c.Updated = time.Now()
	return nil
}

func (m *MockCorpusStore) PushURL(ctx context.Context, corpusID string, entry domain.UrlEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.URLs = append(c.URLs, entry)
	return nil
}

func (m *MockCorpusStore) PullURLs(ctx context.Context, corpusID string, dataIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	drop := make(map[string]struct{}, len(dataIDs))
	for _, id := range dataIDs {
		drop[id] = struct{}{}
	}
	kept := c.URLs[:0]
	removed := 0
	for _, u := range c.URLs {
		if _, ok := drop[u.DataID]; ok {
			removed++
			continue
		}
		kept = append(kept, u)
	}
	c.URLs = kept
	return removed, nil
}

func (m *MockCorpusStore) AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, f := range files {
		present := false
		for _, e := range c.ExpectedFiles {
			if e.UniqueID == f.UniqueID {
				present = true
				break
			}
		}
		if !present {
			c.ExpectedFiles = append(c.ExpectedFiles, f)
		}
	}
	c.CrawlReady = false
	c.DataSource = domain.DataSourceFiles
	return nil
}

func (m *MockCorpusStore) PullExpectedFile(ctx context.Context, corpusID, uniqueID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	kept := c.ExpectedFiles[:0]
	for _, f := range c.ExpectedFiles {
		if f.UniqueID != uniqueID {
			kept = append(kept, f)
		}
	}
	pulled := len(kept) < len(c.ExpectedFiles)
	c.ExpectedFiles = kept
	return len(kept), pulled, nil
}

func (m *MockCorpusStore) SetCrawlReady(ctx context.Context, corpusID string, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.CrawlReady = ready
	return nil
}

func (m *MockCorpusStore) SettleIngestion(ctx context.Context, corpusID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.CrawlReady = !c.IntegrityCheckInProgress
	c.Updated = time.Now()
	return nil
}

func (m *MockCorpusStore) StartIntegrityCheck(ctx context.Context, corpusID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.IntegrityCheckInProgress = true
	c.CrawlReady = false
	m.IntegrityStarts++
	return nil
}

func (m *MockCorpusStore) AbortIntegrityCheck(ctx context.Context, corpusID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.IntegrityCheckInProgress = false
	return nil
}

func (m *MockCorpusStore) CompleteIntegrityCheck(ctx context.Context, corpusID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corpora[corpusID]
	if !ok {
		return domain.ErrNotFound
	}
	c.IntegrityCheckInProgress = false
	c.CrawlReady = true
	c.CorpusReady = true
	return nil
}

func withoutLock(locks []domain.StatusLock, featureCount int) []domain.StatusLock {
	out := locks[:0]
	for _, l := range locks {
		if l.FeatureCount != featureCount {
			out = append(out, l)
		}
	}
	return out
}

func cloneCorpus(c *domain.Corpus) *domain.Corpus {
	cp := *c
	cp.URLs = append([]domain.UrlEntry(nil), c.URLs...)
	cp.ExpectedFiles = append([]domain.ExpectedFile(nil), c.ExpectedFiles...)
	cp.Status = append([]domain.StatusLock(nil), c.Status...)
	return &cp
}
