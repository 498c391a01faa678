package domain

import "time"

// DataSource records how a corpus is populated
type DataSource string

const (
	DataSourceUnset DataSource = ""
	DataSourceWeb   DataSource = "web"
	DataSourceFiles DataSource = "files"
)

// Valid reports whether the data source is one of the known values
func (d DataSource) Valid() bool {
	switch d {
	case DataSourceUnset, DataSourceWeb, DataSourceFiles:
		return true
	}
	return false
}

// UrlEntry is one ingested text of a corpus. Entries are appended and removed
// as a whole, never edited in place.
type UrlEntry struct {
	DataID   string `json:"data_id"`
	FileID   string `json:"file_id"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	TextHash string `json:"text_hash,omitempty"`
	Checked  bool   `json:"checked"`
}

// ExpectedFile is an upload whose text extraction has not reported back yet
type ExpectedFile struct {
	FileName    string `json:"file_name"`
	UniqueID    string `json:"unique_id"`
	ContentType string `json:"content_type,omitempty"`
	Charset     string `json:"charset,omitempty"`
	TmpPath     string `json:"tmp_path,omitempty"`
}

// StatusLock marks a feature computation in flight for one feature count.
// A corpus holds at most one lock per feature count.
type StatusLock struct {
	FeatureCount int       `json:"feature_count"`
	Busy         bool      `json:"busy"`
	TaskName     string    `json:"task_name"`
	TaskID       string    `json:"task_id"`
	Updated      time.Time `json:"updated"`
}

// NewStatusLock creates a busy lock stamped at now
func NewStatusLock(featureCount int, taskName, taskID string, now time.Time) StatusLock {
	return StatusLock{
		FeatureCount: featureCount,
		Busy:         true,
		TaskName:     taskName,
		TaskID:       taskID,
		Updated:      now,
	}
}

// Age returns how long ago the lock was last updated
func (l StatusLock) Age(now time.Time) time.Duration {
	return now.Sub(l.Updated)
}

// IsStale reports whether a busy lock has outlived the staleness threshold
func (l StatusLock) IsStale(now time.Time, after time.Duration) bool {
	return l.Busy && l.Age(now) >= after
}

// Corpus is a named collection of texts plus the flags that gate its
// feature computations.
type Corpus struct {
	ID                       string         `json:"id"`
	Name                     string         `json:"name"`
	Description              string         `json:"description,omitempty"`
	Created                  time.Time      `json:"created"`
	Updated                  time.Time      `json:"updated"`
	Active                   bool           `json:"active"`
	CrawlReady               bool           `json:"crawl_ready"`
	IntegrityCheckInProgress bool           `json:"integrity_check_in_progress"`
	CorpusReady              bool           `json:"corpus_ready"`
	DataSource               DataSource     `json:"data_source,omitempty"`
	URLs                     []UrlEntry     `json:"urls"`
	ExpectedFiles            []ExpectedFile `json:"expected_files"`
	Status                   []StatusLock   `json:"status"`
}

// NewCorpus creates a corpus that is not yet crawl-ready. CorpusReady starts
// true; it only drops while an integrity check has not reported back.
func NewCorpus(name, description string, source DataSource) *Corpus {
	now := time.Now()
	return &Corpus{
		ID:          GenerateID(),
		Name:        name,
		Description: description,
		Created:     now,
		Updated:     now,
		Active:      true,
		CorpusReady: true,
		DataSource:  source,
	}
}

// Lock returns the status lock for a feature count, if any
func (c *Corpus) Lock(featureCount int) (StatusLock, bool) {
	for _, l := range c.Status {
		if l.FeatureCount == featureCount {
			return l, true
		}
	}
	return StatusLock{}, false
}

// FindDocument resolves an id against the url entries, by data id first and
// file id second.
func (c *Corpus) FindDocument(id string) (UrlEntry, bool) {
	for _, u := range c.URLs {
		if u.DataID == id {
			return u, true
		}
	}
	for _, u := range c.URLs {
		if u.FileID == id {
			return u, true
		}
	}
	return UrlEntry{}, false
}

// FileIDs returns the file ids of the entries whose data id is in dataIDs
func (c *Corpus) FileIDs(dataIDs []string) []string {
	wanted := make(map[string]struct{}, len(dataIDs))
	for _, id := range dataIDs {
		wanted[id] = struct{}{}
	}
	var out []string
	for _, u := range c.URLs {
		if _, ok := wanted[u.DataID]; ok && u.FileID != "" {
			out = append(out, u.FileID)
		}
	}
	return out
}

// CrawlFinished reports whether ingestion and any integrity check are done
func (c *Corpus) CrawlFinished() bool {
	return c.CrawlReady && !c.IntegrityCheckInProgress
}

// FilesIngested reports whether every expected upload has been extracted
func (c *Corpus) FilesIngested() bool {
	return len(c.ExpectedFiles) == 0
}

// CorpusStatus is the flag projection of a corpus
type CorpusStatus struct {
	ID                       string     `json:"id"`
	CrawlReady               bool       `json:"crawl_ready"`
	IntegrityCheckInProgress bool       `json:"integrity_check_in_progress"`
	CorpusReady              bool       `json:"corpus_ready"`
	DataSource               DataSource `json:"data_source,omitempty"`
}

// StatusFlags projects the corpus onto its ready flags
func (c *Corpus) StatusFlags() CorpusStatus {
	return CorpusStatus{
		ID:                       c.ID,
		CrawlReady:               c.CrawlReady,
		IntegrityCheckInProgress: c.IntegrityCheckInProgress,
		CorpusReady:              c.CorpusReady,
		DataSource:               c.DataSource,
	}
}

// Readiness answers the ready polls
type Readiness struct {
	CorpusID string `json:"corpus_id"`
	Ready    bool   `json:"ready"`
}

// ListOptions controls corpus listing
type ListOptions struct {
	ReadyOnly bool
	Offset    int
	Limit     int
}

// Normalize applies listing defaults
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 20
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// CorpusSummary is the overview shown for a single corpus
type CorpusSummary struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Created           time.Time  `json:"created"`
	URLCount          int        `json:"url_count"`
	Texts             []UrlEntry `json:"texts"`
	AvailableFeatures []int      `json:"available_features"`
}

// SummaryTextLimit bounds the texts listed in a summary
const SummaryTextLimit = 10
