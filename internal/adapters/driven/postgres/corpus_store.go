package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CorpusStore = (*CorpusStore)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var corpusColumns = []string{
	"id", "name", "description", "created_at", "updated_at", "active",
	"crawl_ready", "integrity_check_in_progress", "corpus_ready", "data_source",
}

const urlColumns = "corpus_id, data_id, file_id, title, url, text_hash, checked"

type rowScanner interface {
	Scan(dest ...any) error
}

// CorpusStore implements driven.CorpusStore on normalized tables: the url
// entries, expected files and status locks of a corpus live in child tables
// so each mutation is one statement on one corpus.
type CorpusStore struct {
	db  *DB
	now func() time.Time
}

// NewCorpusStore creates a new CorpusStore
func NewCorpusStore(db *DB) *CorpusStore {
	return &CorpusStore{db: db, now: time.Now}
}

// Create inserts the corpus with its url entries and expected files
func (s *CorpusStore) Create(ctx context.Context, corpus *domain.Corpus) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query, args, err := psql.Insert("corpora").
			Columns(corpusColumns...).
			Values(corpus.ID, corpus.Name, corpus.Description, corpus.Created, corpus.Updated, corpus.Active,
				corpus.CrawlReady, corpus.IntegrityCheckInProgress, corpus.CorpusReady, string(corpus.DataSource)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("insert corpus: %w", err)
		}

		for _, u := range corpus.URLs {
			if err := insertURL(ctx, tx, corpus.ID, u); err != nil {
				return err
			}
		}
		for _, f := range corpus.ExpectedFiles {
			if err := insertExpectedFile(ctx, tx, corpus.ID, f); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertURL(ctx context.Context, db execer, corpusID string, u domain.UrlEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO corpus_urls (`+urlColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (corpus_id, data_id) DO NOTHING
	`, corpusID, u.DataID, u.FileID, u.Title, u.URL, u.TextHash, u.Checked)
	if err != nil {
		return mapWriteError(err, "insert url")
	}
	return nil
}

func insertExpectedFile(ctx context.Context, db execer, corpusID string, f domain.ExpectedFile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO corpus_expected_files (corpus_id, unique_id, file_name, content_type, charset, tmp_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (corpus_id, unique_id) DO NOTHING
	`, corpusID, f.UniqueID, f.FileName, f.ContentType, f.Charset, f.TmpPath)
	if err != nil {
		return mapWriteError(err, "insert expected file")
	}
	return nil
}

// Get loads a corpus with its children
func (s *CorpusStore) Get(ctx context.Context, id string) (*domain.Corpus, error) {
	query, args, err := psql.Select(corpusColumns...).From("corpora").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	corpus, err := scanCorpus(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	urls, err := s.urls(ctx, []string{id}, 0)
	if err != nil {
		return nil, err
	}
	corpus.URLs = urls[id]

	if corpus.ExpectedFiles, err = s.expectedFiles(ctx, id); err != nil {
		return nil, err
	}
	if corpus.Status, err = s.locks(ctx, id); err != nil {
		return nil, err
	}
	return corpus, nil
}

// GetStatus loads only the flags of a corpus
func (s *CorpusStore) GetStatus(ctx context.Context, id string) (*domain.CorpusStatus, error) {
	var status domain.CorpusStatus
	var source string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, crawl_ready, integrity_check_in_progress, corpus_ready, data_source
		FROM corpora WHERE id = $1
	`, id).Scan(&status.ID, &status.CrawlReady, &status.IntegrityCheckInProgress, &status.CorpusReady, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	status.DataSource = domain.DataSource(source)
	return &status, nil
}

// listQuery builds the corpus page statement for opts
func listQuery(opts domain.ListOptions) (string, []any, error) {
	opts = opts.Normalize()
	b := psql.Select(corpusColumns...).From("corpora")
	if opts.ReadyOnly {
		b = b.Where(sq.Eq{"crawl_ready": true})
	}
	return b.OrderBy("created_at DESC").
		Limit(uint64(opts.Limit)).
		Offset(uint64(opts.Offset)).
		ToSql()
}

// List returns one page of corpora, newest first, each with its first
// domain.SummaryTextLimit url entries.
func (s *CorpusStore) List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error) {
	query, args, err := listQuery(opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list corpora: %w", err)
	}
	defer rows.Close()

	corpora := []*domain.Corpus{}
	var ids []string
	for rows.Next() {
		c, err := scanCorpus(rows)
		if err != nil {
			return nil, err
		}
		corpora = append(corpora, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return corpora, nil
	}

	urls, err := s.urls(ctx, ids, domain.SummaryTextLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range corpora {
		c.URLs = urls[c.ID]
	}
	return corpora, nil
}

// urls loads url entries in insertion order for the given corpora; perCorpus
// caps each corpus when positive.
func (s *CorpusStore) urls(ctx context.Context, ids []string, perCorpus int) (map[string][]domain.UrlEntry, error) {
	inner := psql.Select(urlColumns, "ROW_NUMBER() OVER (PARTITION BY corpus_id ORDER BY position) AS rn").
		From("corpus_urls").
		Where("corpus_id = ANY(?)", pq.Array(ids))
	b := psql.Select(urlColumns).FromSelect(inner, "u").OrderBy("corpus_id", "rn")
	if perCorpus > 0 {
		b = b.Where(sq.LtOrEq{"rn": perCorpus})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load urls: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.UrlEntry, len(ids))
	for rows.Next() {
		var corpusID string
		var u domain.UrlEntry
		if err := rows.Scan(&corpusID, &u.DataID, &u.FileID, &u.Title, &u.URL, &u.TextHash, &u.Checked); err != nil {
			return nil, err
		}
		out[corpusID] = append(out[corpusID], u)
	}
	return out, rows.Err()
}

func (s *CorpusStore) expectedFiles(ctx context.Context, id string) ([]domain.ExpectedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unique_id, file_name, content_type, charset, tmp_path
		FROM corpus_expected_files WHERE corpus_id = $1 ORDER BY unique_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load expected files: %w", err)
	}
	defer rows.Close()

	var files []domain.ExpectedFile
	for rows.Next() {
		var f domain.ExpectedFile
		if err := rows.Scan(&f.UniqueID, &f.FileName, &f.ContentType, &f.Charset, &f.TmpPath); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *CorpusStore) locks(ctx context.Context, id string) ([]domain.StatusLock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_count, busy, task_name, task_id, updated_at
		FROM corpus_status_locks WHERE corpus_id = $1 ORDER BY feature_count
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load status locks: %w", err)
	}
	defer rows.Close()

	var locks []domain.StatusLock
	for rows.Next() {
		var l domain.StatusLock
		if err := rows.Scan(&l.FeatureCount, &l.Busy, &l.TaskName, &l.TaskID, &l.Updated); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// CountURLs returns the number of url entries of a corpus
func (s *CorpusStore) CountURLs(ctx context.Context, id string) (int, error) {
	var exists bool
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM corpora WHERE id = $1),
		       (SELECT COUNT(*) FROM corpus_urls WHERE corpus_id = $1)
	`, id).Scan(&exists, &n)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return n, nil
}

// InsertLock relies on the (corpus_id, feature_count) key: a conflicting row
// means the computation is already dispatched.
func (s *CorpusStore) InsertLock(ctx context.Context, corpusID string, lock domain.StatusLock) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO corpus_status_locks (corpus_id, feature_count, busy, task_name, task_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (corpus_id, feature_count) DO NOTHING
	`, corpusID, lock.FeatureCount, lock.Busy, lock.TaskName, lock.TaskID, lock.Updated)
	if err != nil {
		return false, mapWriteError(err, "insert status lock")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteLock removes lock only while the stored row still carries its task
// id, so a lock dispatched after a concurrent purge survives.
func (s *CorpusStore) DeleteLock(ctx context.Context, corpusID string, lock domain.StatusLock) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM corpus_status_locks WHERE corpus_id = $1 AND feature_count = $2 AND task_id = $3`,
		corpusID, lock.FeatureCount, lock.TaskID,
	)
	return err
}

// CompleteComputation drops the lock and, on success, sets crawl ready unless
// an integrity check is running, in one statement.
func (s *CorpusStore) CompleteComputation(ctx context.Context, corpusID string, featureCount int, succeeded bool) error {
	result, err := s.db.ExecContext(ctx, `
		WITH dropped AS (
			DELETE FROM corpus_status_locks WHERE corpus_id = $1 AND feature_count = $2
		)
		UPDATE corpora
		SET crawl_ready = CASE WHEN $3::boolean AND NOT integrity_check_in_progress THEN TRUE ELSE crawl_ready END,
		    updated_at = $4
		WHERE id = $1
	`, corpusID, featureCount, succeeded, s.now())
	if err != nil {
		return fmt.Errorf("complete computation: %w", err)
	}
	return affectedOne(result)
}

// PushURL appends a url entry; an entry with the same data id is kept as is
func (s *CorpusStore) PushURL(ctx context.Context, corpusID string, entry domain.UrlEntry) error {
	return insertURL(ctx, s.db, corpusID, entry)
}

// PullURLs removes the url entries whose data id is in dataIDs
func (s *CorpusStore) PullURLs(ctx context.Context, corpusID string, dataIDs []string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM corpus_urls WHERE corpus_id = $1 AND data_id = ANY($2)`,
		corpusID, pq.Array(dataIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("pull urls: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// AddExpectedFiles adds uploads and turns the corpus into a files corpus that
// is not crawl ready.
func (s *CorpusStore) AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE corpora SET crawl_ready = FALSE, data_source = $2, updated_at = $3 WHERE id = $1
		`, corpusID, string(domain.DataSourceFiles), s.now())
		if err != nil {
			return err
		}
		if err := affectedOne(result); err != nil {
			return err
		}
		for _, f := range files {
			if err := insertExpectedFile(ctx, tx, corpusID, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// PullExpectedFile removes one expected file and returns how many remain.
// The count runs on the snapshot before the delete, hence the exclusion.
func (s *CorpusStore) PullExpectedFile(ctx context.Context, corpusID, uniqueID string) (int, bool, error) {
	var exists, pulled bool
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		WITH pulled AS (
			DELETE FROM corpus_expected_files WHERE corpus_id = $1 AND unique_id = $2
			RETURNING unique_id
		)
		SELECT EXISTS (SELECT 1 FROM corpora WHERE id = $1),
		       (SELECT COUNT(*) FROM corpus_expected_files WHERE corpus_id = $1 AND unique_id <> $2),
		       EXISTS (SELECT 1 FROM pulled)
	`, corpusID, uniqueID).Scan(&exists, &remaining, &pulled)
	if err != nil {
		return 0, false, fmt.Errorf("pull expected file: %w", err)
	}
	if !exists {
		return 0, false, domain.ErrNotFound
	}
	return remaining, pulled, nil
}

// SetCrawlReady sets the crawl ready flag
func (s *CorpusStore) SetCrawlReady(ctx context.Context, corpusID string, ready bool) error {
	return s.setFlags(ctx, corpusID, sq.Eq{"crawl_ready": ready})
}

// SettleIngestion sets crawl ready from the integrity flag in one statement
func (s *CorpusStore) SettleIngestion(ctx context.Context, corpusID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE corpora
		SET crawl_ready = NOT integrity_check_in_progress, updated_at = $2
		WHERE id = $1
	`, corpusID, s.now())
	if err != nil {
		return fmt.Errorf("settle ingestion: %w", err)
	}
	return affectedOne(result)
}

// StartIntegrityCheck sets integrity in progress and clears crawl ready
func (s *CorpusStore) StartIntegrityCheck(ctx context.Context, corpusID string) error {
	return s.setFlags(ctx, corpusID, sq.Eq{"integrity_check_in_progress": true, "crawl_ready": false})
}

// AbortIntegrityCheck clears integrity in progress only
func (s *CorpusStore) AbortIntegrityCheck(ctx context.Context, corpusID string) error {
	return s.setFlags(ctx, corpusID, sq.Eq{"integrity_check_in_progress": false})
}

// CompleteIntegrityCheck clears integrity in progress and sets both ready flags
func (s *CorpusStore) CompleteIntegrityCheck(ctx context.Context, corpusID string) error {
	return s.setFlags(ctx, corpusID, sq.Eq{
		"integrity_check_in_progress": false,
		"crawl_ready":                 true,
		"corpus_ready":                true,
	})
}

func (s *CorpusStore) setFlags(ctx context.Context, corpusID string, flags sq.Eq) error {
	query, args, err := flagsQuery(corpusID, flags, s.now())
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update corpus flags: %w", err)
	}
	return affectedOne(result)
}

// flagsQuery builds one UPDATE setting every flag plus updated_at
func flagsQuery(corpusID string, flags sq.Eq, now time.Time) (string, []any, error) {
	b := psql.Update("corpora").SetMap(map[string]any(flags)).Set("updated_at", now)
	return b.Where(sq.Eq{"id": corpusID}).ToSql()
}

func scanCorpus(row rowScanner) (*domain.Corpus, error) {
	var c domain.Corpus
	var source string
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Created,
		&c.Updated,
		&c.Active,
		&c.CrawlReady,
		&c.IntegrityCheckInProgress,
		&c.CorpusReady,
		&source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.DataSource = domain.DataSource(source)
	return &c, nil
}

// Postgres error codes the store maps onto domain errors
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// mapWriteError turns a missing parent corpus into domain.ErrNotFound
func mapWriteError(err error, op string) error {
	if pqCode(err) == codeForeignKeyViolation {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affectedOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
