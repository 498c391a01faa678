package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
)

// Ensure corpusService implements CorpusService
var _ driving.CorpusService = (*corpusService)(nil)

// corpusService implements the CorpusService interface. Long work goes
// through the task queue; the service itself only performs single-step
// store updates.
type corpusService struct {
	corpora    driven.CorpusStore
	artifacts  driven.ArtifactStore
	taskQueue  driven.TaskQueue
	crawlDepth int
	logger     *slog.Logger
}

// CorpusServiceConfig holds configuration for the corpus service.
type CorpusServiceConfig struct {
	Corpora    driven.CorpusStore
	Artifacts  driven.ArtifactStore
	TaskQueue  driven.TaskQueue
	CrawlDepth int // depth used when a crawl follows links, default: 2
	Logger     *slog.Logger
}

// NewCorpusService creates a new CorpusService
func NewCorpusService(cfg CorpusServiceConfig) driving.CorpusService {
	s := &corpusService{
		corpora:    cfg.Corpora,
		artifacts:  cfg.Artifacts,
		taskQueue:  cfg.TaskQueue,
		crawlDepth: cfg.CrawlDepth,
		logger:     cfg.Logger,
	}
	if s.crawlDepth <= 0 {
		s.crawlDepth = domain.DefaultCoordinatorConfig().DefaultCrawlDepth
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateFromCrawl creates a web corpus and schedules its crawl
func (s *corpusService) CreateFromCrawl(ctx context.Context, req driving.CreateFromCrawlRequest) (*domain.Corpus, error) {
	name := strings.TrimSpace(req.Name)
	endpoint := strings.TrimSpace(req.Endpoint)
	if name == "" || endpoint == "" {
		return nil, fmt.Errorf("%w: name and endpoint are required", domain.ErrInvalidInput)
	}

	corpus := domain.NewCorpus(name, req.Description, domain.DataSourceWeb)
	if err := s.corpora.Create(ctx, corpus); err != nil {
		return nil, err
	}

	if err := s.enqueueCrawl(ctx, corpus.ID, endpoint, req.Crawl); err != nil {
		return nil, err
	}

	s.logger.Info("corpus created", "corpus_id", corpus.ID, "data_source", corpus.DataSource)
	return corpus, nil
}

// Crawl schedules another crawl for an existing corpus
func (s *corpusService) Crawl(ctx context.Context, corpusID string, req driving.CrawlRequest) error {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrInvalidInput)
	}
	if _, err := s.corpora.GetStatus(ctx, corpusID); err != nil {
		return err
	}
	if err := s.corpora.SetCrawlReady(ctx, corpusID, false); err != nil {
		return err
	}
	return s.enqueueCrawl(ctx, corpusID, endpoint, req.Crawl)
}

func (s *corpusService) enqueueCrawl(ctx context.Context, corpusID, endpoint string, follow bool) error {
	depth := 0
	if follow {
		depth = s.crawlDepth
	}
	task := domain.NewStartCrawlTask(corpusID, []string{endpoint}, depth)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue crawl: %w", err)
	}
	return nil
}

// CreateFromUpload creates a files corpus waiting for text extraction
func (s *corpusService) CreateFromUpload(ctx context.Context, req driving.CreateFromUploadRequest) (*domain.Corpus, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := validateExpectedFiles(req.Files); err != nil {
		return nil, err
	}

	corpus := domain.NewCorpus(name, req.Description, domain.DataSourceFiles)
	corpus.ExpectedFiles = req.Files
	if err := s.corpora.Create(ctx, corpus); err != nil {
		return nil, err
	}

	s.logger.Info("corpus created", "corpus_id", corpus.ID, "data_source", corpus.DataSource, "expected_files", len(req.Files))
	return corpus, nil
}

// AddExpectedFiles registers more uploads on an existing corpus
func (s *corpusService) AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no files", domain.ErrInvalidInput)
	}
	if err := validateExpectedFiles(files); err != nil {
		return err
	}
	return s.corpora.AddExpectedFiles(ctx, corpusID, files)
}

func validateExpectedFiles(files []domain.ExpectedFile) error {
	for _, f := range files {
		if f.UniqueID == "" || f.FileName == "" {
			return fmt.Errorf("%w: expected files need a file name and unique id", domain.ErrInvalidInput)
		}
	}
	return nil
}

// Get retrieves a corpus by ID
func (s *corpusService) Get(ctx context.Context, corpusID string) (*domain.Corpus, error) {
	return s.corpora.Get(ctx, corpusID)
}

// List retrieves corpora newest first
func (s *corpusService) List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error) {
	return s.corpora.List(ctx, opts.Normalize())
}

// Summary returns the overview of a corpus
func (s *corpusService) Summary(ctx context.Context, corpusID string) (*domain.CorpusSummary, error) {
	corpus, err := s.corpora.Get(ctx, corpusID)
	if err != nil {
		return nil, err
	}

	texts := corpus.URLs
	if len(texts) > domain.SummaryTextLimit {
		texts = texts[:domain.SummaryTextLimit]
	}

	counts, err := s.artifacts.AvailableFeatureCounts(ctx, corpusID)
	if err != nil {
		s.logger.Debug("feature count probe failed", "corpus_id", corpusID, "error", err)
		counts = nil
	}
	if counts == nil {
		counts = []int{}
	}

	return &domain.CorpusSummary{
		ID:                corpus.ID,
		Name:              corpus.Name,
		Description:       corpus.Description,
		Created:           corpus.Created,
		URLCount:          len(corpus.URLs),
		Texts:             texts,
		AvailableFeatures: counts,
	}, nil
}

// Status returns the ready flags of a corpus
func (s *corpusService) Status(ctx context.Context, corpusID string) (*domain.CorpusStatus, error) {
	return s.corpora.GetStatus(ctx, corpusID)
}

// Document looks up one text by data id or file id
func (s *corpusService) Document(ctx context.Context, corpusID, docID string) (*domain.UrlEntry, error) {
	corpus, err := s.corpora.Get(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	entry, ok := corpus.FindDocument(docID)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return &entry, nil
}

// CrawlIsReady reports whether crawling and integrity checks are done
func (s *corpusService) CrawlIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error) {
	status, err := s.corpora.GetStatus(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	return &domain.Readiness{
		CorpusID: corpusID,
		Ready:    status.CrawlReady && !status.IntegrityCheckInProgress,
	}, nil
}

// FileUploadIsReady reports whether every upload has been ingested
func (s *corpusService) FileUploadIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error) {
	status, err := s.corpora.GetStatus(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	return &domain.Readiness{CorpusID: corpusID, Ready: status.CrawlReady}, nil
}

// DeleteDocuments clears crawl ready and schedules one removal task for the
// whole id set
func (s *corpusService) DeleteDocuments(ctx context.Context, corpusID string, dataIDs []string) error {
	ids := dedupe(dataIDs)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no documents to delete", domain.ErrInvalidInput)
	}
	if _, err := s.corpora.GetStatus(ctx, corpusID); err != nil {
		return err
	}
	if err := s.corpora.SetCrawlReady(ctx, corpusID, false); err != nil {
		return err
	}
	if err := s.taskQueue.Enqueue(ctx, domain.NewDeleteDocumentsTask(corpusID, ids)); err != nil {
		return fmt.Errorf("enqueue deletion: %w", err)
	}
	s.logger.Info("document deletion scheduled", "corpus_id", corpusID, "documents", len(ids))
	return nil
}

// CheckIntegrity schedules an integrity check
func (s *corpusService) CheckIntegrity(ctx context.Context, corpusID string) error {
	if _, err := s.corpora.GetStatus(ctx, corpusID); err != nil {
		return err
	}
	if err := s.taskQueue.Enqueue(ctx, domain.NewIntegrityCheckTask(corpusID)); err != nil {
		return fmt.Errorf("enqueue integrity check: %w", err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DocumentRemover runs delete_documents tasks
type DocumentRemover struct {
	corpora   driven.CorpusStore
	artifacts driven.ArtifactStore
	integrity *IntegrityPipeline
	logger    *slog.Logger
}

// NewDocumentRemover creates a new DocumentRemover
func NewDocumentRemover(corpora driven.CorpusStore, artifacts driven.ArtifactStore, integrity *IntegrityPipeline, logger *slog.Logger) *DocumentRemover {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentRemover{
		corpora:   corpora,
		artifacts: artifacts,
		integrity: integrity,
		logger:    logger.With("component", "document_remover"),
	}
}

// RemoveDocuments deletes the texts, pulls the url entries in one update
// and settles the corpus once for the whole set.
func (r *DocumentRemover) RemoveDocuments(ctx context.Context, corpusID string, dataIDs []string) error {
	corpus, err := r.corpora.Get(ctx, corpusID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("corpus vanished before deletion", "corpus_id", corpusID)
			return nil
		}
		return err
	}
	fileIDs := corpus.FileIDs(dataIDs)

	// Texts first: a retried task still finds the file ids on the entries
	if err := r.artifacts.RemoveTexts(ctx, corpusID, fileIDs); err != nil {
		return fmt.Errorf("remove texts: %w", err)
	}
	removed, err := r.corpora.PullURLs(ctx, corpusID, dataIDs)
	if err != nil {
		return fmt.Errorf("pull urls: %w", err)
	}

	r.logger.Info("documents removed", "corpus_id", corpusID, "requested", len(dataIDs), "removed", removed)
	return r.integrity.Settle(ctx, corpusID)
}
