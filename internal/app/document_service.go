package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"docqa/internal/domain"
	"docqa/internal/filestore"
	"docqa/internal/rag"
	"docqa/internal/vectorindex"
)

// FormatChecker reports whether a file name has a loadable extension.
type FormatChecker interface {
	Supported(name string) bool
}

type UploadResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

type DocumentInfo struct {
	Filename   string  `json:"filename"`
	Size       int64   `json:"size"`
	UploadedAt float64 `json:"uploaded_at"`
}

type ReconcileResult struct {
	RemovedSources []string `json:"removed_sources"`
	RemovedEntries int      `json:"removed_entries"`
}

// DocumentService manages uploaded files and keeps the vector index in step with them.
type DocumentService struct {
	store    *filestore.Store
	ingestor *rag.Ingestor
	index    vectorindex.Index
	formats  FormatChecker
	logger   *slog.Logger
}

func NewDocumentService(
	store *filestore.Store,
	ingestor *rag.Ingestor,
	index vectorindex.Index,
	formats FormatChecker,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		store:    store,
		ingestor: ingestor,
		index:    index,
		formats:  formats,
		logger:   logger,
	}
}

// Upload stages r, ingests it under the file name and moves it into the upload directory only
// when ingestion succeeded.
func (s *DocumentService) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	name, err := filestore.CleanName(filename)
	if err != nil {
		return nil, err
	}
	if s.formats != nil && !s.formats.Supported(name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, name)
	}

	staged, err := s.store.Stage(name, r)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.store.Discard(staged)
		}
	}()

	var res *rag.IngestResult
	err = s.ingestor.WithSourceLock(ctx, name, func(ctx context.Context) error {
		var err error
		res, err = s.ingestor.IngestLocked(ctx, staged, name)
		if err != nil {
			return err
		}
		if _, err := s.store.Commit(staged, name); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &UploadResult{Filename: name, Chunks: res.Chunks}, nil
}

// Delete removes the file and then every index entry of that source. When removing the entries
// fails the file stays deleted; Reconcile cleans up later.
func (s *DocumentService) Delete(ctx context.Context, filename string) (int, error) {
	name, err := filestore.CleanName(filename)
	if err != nil {
		return 0, err
	}
	var removed int
	err = s.ingestor.WithSourceLock(ctx, name, func(ctx context.Context) error {
		if err := s.store.Remove(name); err != nil {
			return err
		}
		n, err := s.index.DeleteWhere(ctx, domain.SourceFilter(name))
		if err != nil {
			return fmt.Errorf("file %s deleted but removing its embeddings failed: %w", name, err)
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("document deleted", "source", name, "entries", removed)
	return removed, nil
}

func (s *DocumentService) List(_ context.Context) ([]DocumentInfo, error) {
	files, err := s.store.Files()
	if err != nil {
		return nil, err
	}
	docs := make([]DocumentInfo, len(files))
	for i, f := range files {
		docs[i] = DocumentInfo{
			Filename:   f.Name,
			Size:       f.Size,
			UploadedAt: float64(f.ModTime.UnixMilli()) / 1000,
		}
	}
	return docs, nil
}

// Reconcile removes index entries whose source file no longer exists.
func (s *DocumentService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	sources, err := s.index.Sources(ctx)
	if err != nil {
		return nil, err
	}
	res := &ReconcileResult{RemovedSources: []string{}}
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := s.ingestor.WithSourceLock(ctx, source, func(ctx context.Context) error {
			exists, err := s.store.Exists(source)
			switch {
			case errors.Is(err, domain.ErrInvalidInput):
				// no file can ever carry a name the store rejects
			case err != nil:
				return err
			case exists:
				return nil
			}
			n, err := s.index.DeleteWhere(ctx, domain.SourceFilter(source))
			if err != nil {
				return err
			}
			if n > 0 {
				res.RemovedSources = append(res.RemovedSources, source)
				res.RemovedEntries += n
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}
	if res.RemovedEntries > 0 {
		s.logger.Info("orphaned index entries removed", "sources", res.RemovedSources, "entries", res.RemovedEntries)
	}
	return res, nil
}
