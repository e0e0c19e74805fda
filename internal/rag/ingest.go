package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/ai"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/lock"
	"docqa/internal/vectorindex"
)

// chunkNamespace seeds the name-based chunk IDs.
var chunkNamespace = uuid.MustParse("0d5c9a4e-6f0b-4a53-9c71-1f3f2b9e8a10")

// Loader reads a file into ordered text units.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.TextUnit, error)
}

type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Units  int    `json:"units"`
}

// Ingestor turns a file into index entries. All entries of a source are replaced in one
// transaction, so a failed ingestion leaves the previous entries untouched.
type Ingestor struct {
	loader   Loader
	chunker  *chunker.Chunker
	embedder ai.Embedder
	index    vectorindex.Index
	locker   lock.Locker
	logger   *slog.Logger
}

func NewIngestor(
	loader Loader,
	chunker *chunker.Chunker,
	embedder ai.Embedder,
	index vectorindex.Index,
	locker lock.Locker,
	logger *slog.Logger,
) *Ingestor {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		locker:   locker,
		logger:   logger,
	}
}

// Ingest indexes the file at path under source, holding the source lock.
func (i *Ingestor) Ingest(ctx context.Context, path, source string) (*IngestResult, error) {
	var res *IngestResult
	err := i.WithSourceLock(ctx, source, func(ctx context.Context) error {
		var err error
		res, err = i.IngestLocked(ctx, path, source)
		return err
	})
	return res, err
}

// WithSourceLock runs fn while holding the lock of source. The lock is not reentrant.
func (i *Ingestor) WithSourceLock(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	release, err := i.locker.Acquire(ctx, source)
	if err != nil {
		return fmt.Errorf("acquire lock for %s failed: %w", source, err)
	}
	defer release()
	return fn(ctx)
}

// IngestLocked indexes the file at path. The caller must hold the source lock.
func (i *Ingestor) IngestLocked(ctx context.Context, path, source string) (*IngestResult, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty source name", domain.ErrInvalidInput)
	}
	started := time.Now()

	units, err := i.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	var texts []string
	var metas []domain.Metadata
	for _, p := range i.chunker.Split(units) {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		metas = append(metas, domain.ChunkMetadata(source, p.Page, p.Offset, len(texts)))
		texts = append(texts, p.Text)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, source)
	}

	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}

	entries := make([]domain.IndexEntry, len(texts))
	for n := range texts {
		entries[n] = domain.IndexEntry{
			ID:       ChunkID(source, metas[n][domain.MetaPage], n),
			Vector:   vectors[n],
			Content:  texts[n],
			Metadata: metas[n],
		}
	}
	if err := i.index.Replace(ctx, domain.SourceFilter(source), entries); err != nil {
		return nil, err
	}

	i.logger.Info("document ingested",
		"source", source, "units", len(units), "chunks", len(entries), "elapsed", time.Since(started))
	return &IngestResult{Source: source, Chunks: len(entries), Units: len(units)}, nil
}

// ChunkID derives a stable entry ID from the source, page and chunk position.
func ChunkID(source, page string, index int) string {
	name := source + "\x00" + page + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
