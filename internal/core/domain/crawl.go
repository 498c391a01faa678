package domain

import "time"

// CrawlState is the position of a corpus in the crawl monitor
type CrawlState string

const (
	CrawlDispatched CrawlState = "dispatched"
	CrawlPolling    CrawlState = "polling"
	CrawlReady      CrawlState = "ready"
	CrawlGaveUp     CrawlState = "gave_up"
	CrawlRefused    CrawlState = "refused"
)

// CrawlMetrics is what the metrics source knows about a running crawl
type CrawlMetrics struct {
	LastActivity   time.Time `json:"last_activity"`
	SuccessCount   int64     `json:"success_count"`
	ExceptionCount int64     `json:"exception_count"`
}

// IdleFor returns how long the crawl has been quiet
func (m CrawlMetrics) IdleFor(now time.Time) time.Duration {
	return now.Sub(m.LastActivity)
}

// CrawlRequest is sent to the crawler
type CrawlRequest struct {
	CorpusID string   `json:"corpus_id"`
	URLs     []string `json:"urls"`
	Depth    int      `json:"depth"`
}

// ComputeVariant selects the request shape sent to the numeric worker
type ComputeVariant string

const (
	// ComputeMatrices builds the base vectors from raw text and then factorizes
	ComputeMatrices ComputeVariant = "compute_matrices"
	// FactorizeMatrices reuses base vectors that already exist
	FactorizeMatrices ComputeVariant = "factorize_matrices"
)

// ComputeRequest asks the numeric worker for one factorization. Payload is a
// path reference into the artifact store, not the data itself.
type ComputeRequest struct {
	TaskID         string         `json:"task_id"`
	CorpusID       string         `json:"corpus_id"`
	Variant        ComputeVariant `json:"variant"`
	FeatureCount   int            `json:"feature_count"`
	Words          int            `json:"words"`
	DocsPerFeature int            `json:"docs_per_feature"`
	FeaturesPerDoc int            `json:"features_per_doc"`
	Payload        string         `json:"payload"`
}

// IntegrityRequest asks the numeric worker to reconcile a corpus with its artifacts
type IntegrityRequest struct {
	CorpusID string `json:"corpus_id"`
	Path     string `json:"path"`
}

// ComputeCallback is reported by the numeric worker when a factorization ends
type ComputeCallback struct {
	CorpusID     string `json:"corpus_id"`
	FeatureCount int    `json:"feature_count"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// IntegrityCallback is reported when an integrity check ends
type IntegrityCallback struct {
	CorpusID string `json:"corpus_id"`
}

// FileExtractCallback is reported when the text of an upload has been extracted
type FileExtractCallback struct {
	CorpusID string `json:"corpus_id"`
	DataID   string `json:"data_id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	UniqueID string `json:"unique_id"`
	TextHash string `json:"text_hash,omitempty"`
	Success  bool   `json:"success"`
}

// CoordinatorConfig holds the thresholds of the coordinator
type CoordinatorConfig struct {
	// StaleLockAfter is the age at which a busy lock is considered abandoned
	StaleLockAfter time.Duration
	// IdleThreshold is how long a crawl must be quiet to count as finished
	IdleThreshold time.Duration
	// MaxIterations bounds the crawl polls
	MaxIterations int
	// PollCountdown separates two crawl polls
	PollCountdown time.Duration
	// StartDelay separates the crawl request from the first poll
	StartDelay time.Duration
	// CorpusMaxSize is the url count at which crawls are refused
	CorpusMaxSize int
	// DefaultCrawlDepth is used when a crawl follows links
	DefaultCrawlDepth int
	// DispatchLockTTL bounds the cross-instance dispatch lock
	DispatchLockTTL time.Duration
}

// DefaultCoordinatorConfig returns the production thresholds
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		StaleLockAfter:    15 * time.Minute,
		IdleThreshold:     30 * time.Second,
		MaxIterations:     150,
		PollCountdown:     5 * time.Second,
		StartDelay:        10 * time.Second,
		CorpusMaxSize:     500,
		DefaultCrawlDepth: 2,
		DispatchLockTTL:   30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultCoordinatorConfig
func (c CoordinatorConfig) WithDefaults() CoordinatorConfig {
	d := DefaultCoordinatorConfig()
	if c.StaleLockAfter <= 0 {
		c.StaleLockAfter = d.StaleLockAfter
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = d.IdleThreshold
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.PollCountdown <= 0 {
		c.PollCountdown = d.PollCountdown
	}
	if c.StartDelay <= 0 {
		c.StartDelay = d.StartDelay
	}
	if c.CorpusMaxSize <= 0 {
		c.CorpusMaxSize = d.CorpusMaxSize
	}
	if c.DefaultCrawlDepth <= 0 {
		c.DefaultCrawlDepth = d.DefaultCrawlDepth
	}
	if c.DispatchLockTTL <= 0 {
		c.DispatchLockTTL = d.DispatchLockTTL
	}
	return c
}
