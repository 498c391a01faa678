// Package artifacts reads the files shared with the numeric worker from a
// data root both sides mount.
//
// Layout per corpus:
//
//	<root>/<corpus>/text/<file id>                  raw texts
//	<root>/<corpus>/matrix/vectors.npy              base vectors
//	<root>/<corpus>/matrix/<k>/factorization.json   one factorization per feature count
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

const (
	TextFolder        = "text"
	MatrixFolder      = "matrix"
	VectorsFile       = "vectors.npy"
	FactorizationFile = "factorization.json"
)

// Verify interface compliance
var _ driven.ArtifactStore = (*FileStore)(nil)

// FileStore implements driven.ArtifactStore on a local or mounted directory
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates the data root if needed
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileStore{root: root, logger: logger.With("component", "artifacts")}, nil
}

// CorpusPath returns the corpus folder
func (s *FileStore) CorpusPath(corpusID string) string {
	return filepath.Join(s.root, filepath.Base(corpusID))
}

// VectorsPath returns the base vectors file
func (s *FileStore) VectorsPath(corpusID string) string {
	return filepath.Join(s.matrixPath(corpusID), VectorsFile)
}

func (s *FileStore) matrixPath(corpusID string) string {
	return filepath.Join(s.CorpusPath(corpusID), MatrixFolder)
}

func (s *FileStore) textPath(corpusID string) string {
	return filepath.Join(s.CorpusPath(corpusID), TextFolder)
}

func (s *FileStore) factorizationPath(corpusID string, featureCount int) string {
	return filepath.Join(s.matrixPath(corpusID), strconv.Itoa(featureCount), FactorizationFile)
}

// AvailableFeatureCounts lists the numbered matrix folders holding a
// factorization file. A missing matrix folder yields an empty list.
func (s *FileStore) AvailableFeatureCounts(ctx context.Context, corpusID string) ([]int, error) {
	entries, err := os.ReadDir(s.matrixPath(corpusID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read matrix folder: %w", err)
	}

	var counts []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		k, err := strconv.Atoi(e.Name())
		if err != nil || k <= 0 {
			continue
		}
		if exists(s.factorizationPath(corpusID, k)) {
			counts = append(counts, k)
		}
	}
	slices.Sort(counts)
	return counts, nil
}

// VectorsExist reports whether vectors.npy is present
func (s *FileStore) VectorsExist(ctx context.Context, corpusID string) (bool, error) {
	return exists(s.VectorsPath(corpusID)), nil
}

// MatrixExists reports whether the matrix folder has any entry
func (s *FileStore) MatrixExists(ctx context.Context, corpusID string) (bool, error) {
	entries, err := os.ReadDir(s.matrixPath(corpusID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read matrix folder: %w", err)
	}
	return len(entries) > 0, nil
}

// LoadFactorization decodes and validates the factorization for featureCount
func (s *FileStore) LoadFactorization(ctx context.Context, corpusID string, featureCount int) (*domain.Factorization, error) {
	f, err := os.Open(s.factorizationPath(corpusID, featureCount))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open factorization: %w", err)
	}
	defer f.Close()

	var fac domain.Factorization
	if err := json.NewDecoder(f).Decode(&fac); err != nil {
		return nil, fmt.Errorf("decode factorization %d: %w", featureCount, err)
	}
	if err := fac.Validate(); err != nil {
		return nil, err
	}
	return &fac, nil
}

// RemoveTexts deletes the raw text of each file id
func (s *FileStore) RemoveTexts(ctx context.Context, corpusID string, fileIDs []string) error {
	dir := s.textPath(corpusID)
	for _, id := range fileIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Base keeps ids from escaping the text folder
		path := filepath.Join(dir, filepath.Base(id))
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove text %s: %w", id, err)
		}
		if err == nil {
			s.logger.Debug("removed text", "corpus_id", corpusID, "file_id", id)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
