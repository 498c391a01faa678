package driving

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// CreateFromCrawlRequest represents a request to create a corpus from a web crawl
type CreateFromCrawlRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Endpoint    string `json:"endpoint"`
	// Crawl follows links from the endpoint when true; otherwise only the
	// endpoint itself is fetched.
	Crawl bool `json:"crawl"`
}

// CrawlRequest represents a request to crawl more pages into an existing corpus
type CrawlRequest struct {
	Endpoint string `json:"endpoint"`
	Crawl    bool   `json:"crawl"`
}

// CreateFromUploadRequest represents a request to create a corpus from uploads
type CreateFromUploadRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Files       []domain.ExpectedFile `json:"files"`
}

// CorpusService manages corpora and their ingestion lifecycle
type CorpusService interface {
	// CreateFromCrawl creates a web corpus and schedules its crawl
	CreateFromCrawl(ctx context.Context, req CreateFromCrawlRequest) (*domain.Corpus, error)

	// Crawl schedules another crawl for an existing corpus
	Crawl(ctx context.Context, corpusID string, req CrawlRequest) error

	// CreateFromUpload creates a files corpus waiting for text extraction
	CreateFromUpload(ctx context.Context, req CreateFromUploadRequest) (*domain.Corpus, error)

	// AddExpectedFiles registers more uploads on an existing corpus
	AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error

	// Get retrieves a corpus by ID
	Get(ctx context.Context, corpusID string) (*domain.Corpus, error)

	// List retrieves corpora newest first
	List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error)

	// Summary returns the overview of a corpus
	Summary(ctx context.Context, corpusID string) (*domain.CorpusSummary, error)

	// Status returns the ready flags of a corpus
	Status(ctx context.Context, corpusID string) (*domain.CorpusStatus, error)

	// Document looks up one text by data id or file id
	Document(ctx context.Context, corpusID, docID string) (*domain.UrlEntry, error)

	// CrawlIsReady reports whether crawling and integrity checks are done
	CrawlIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error)

	// FileUploadIsReady reports whether every upload has been ingested
	FileUploadIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error)

	// DeleteDocuments schedules the removal of texts from a corpus
	DeleteDocuments(ctx context.Context, corpusID string, dataIDs []string) error

	// CheckIntegrity schedules an integrity check, e.g. after a crawl gave up
	CheckIntegrity(ctx context.Context, corpusID string) error
}
