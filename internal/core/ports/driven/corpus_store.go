package driven

import (
	"context"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
)

// CorpusStore persists corpora. Every mutating method is a single atomic
// update of one corpus; callers never read, modify and write back.
type CorpusStore interface {
	// Create inserts a new corpus with its expected files.
	Create(ctx context.Context, corpus *domain.Corpus) error

	// Get loads a corpus with its urls, expected files and status locks.
	// Returns domain.ErrNotFound if the corpus does not exist.
	Get(ctx context.Context, id string) (*domain.Corpus, error)

	// GetStatus loads only the ready flags of a corpus.
	GetStatus(ctx context.Context, id string) (*domain.CorpusStatus, error)

	// List returns corpora newest first, each with at most
	// domain.SummaryTextLimit url entries.
	List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error)

	// CountURLs returns the number of url entries of a corpus.
	CountURLs(ctx context.Context, id string) (int, error)

	// InsertLock adds a status lock unless one exists for the same feature
	// count. Returns false when a lock was already present.
	InsertLock(ctx context.Context, corpusID string, lock domain.StatusLock) (bool, error)

	// DeleteLock removes lock if it is still the one stored for its feature
	// count, matched on task id. A lock replaced in the meantime is kept.
	DeleteLock(ctx context.Context, corpusID string, lock domain.StatusLock) error

	// CompleteComputation removes the status lock for a feature count and, when
	// succeeded, sets crawl ready unless an integrity check is in progress.
	CompleteComputation(ctx context.Context, corpusID string, featureCount int, succeeded bool) error

	// PushURL appends a url entry.
	PushURL(ctx context.Context, corpusID string, entry domain.UrlEntry) error

	// PullURLs removes the url entries whose data id is in dataIDs and
	// returns how many were removed.
	PullURLs(ctx context.Context, corpusID string, dataIDs []string) (int, error)

	// AddExpectedFiles adds files to the expected set, marks the corpus as a
	// files corpus and clears crawl ready.
	AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error

	// PullExpectedFile removes one expected file and returns how many remain.
	// pulled is false when the file was no longer expected.
	PullExpectedFile(ctx context.Context, corpusID, uniqueID string) (remaining int, pulled bool, err error)

	// SetCrawlReady sets the crawl ready flag.
	SetCrawlReady(ctx context.Context, corpusID string, ready bool) error

	// SettleIngestion sets crawl ready unless an integrity check is in
	// progress, in which case the check's completion sets it.
	SettleIngestion(ctx context.Context, corpusID string) error

	// StartIntegrityCheck sets integrity in progress and clears crawl ready.
	StartIntegrityCheck(ctx context.Context, corpusID string) error

	// AbortIntegrityCheck clears integrity in progress without touching the
	// ready flags, used when the check request could not be sent.
	AbortIntegrityCheck(ctx context.Context, corpusID string) error

	// CompleteIntegrityCheck clears integrity in progress and sets crawl ready
	// and corpus ready.
	CompleteIntegrityCheck(ctx context.Context, corpusID string) error
}
