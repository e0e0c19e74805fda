// Package pgvector is the vector index backed by PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"docqa/internal/domain"
	"docqa/internal/vectorindex"
)

var _ vectorindex.Index = (*Index)(nil)

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config selects the table and the fixed vector dimension. A zero Dimension creates an
// unconstrained vector column without an ANN index.
type Config struct {
	Table     string
	Dimension int
}

type Index struct {
	db     *sqlx.DB
	table  string
	dim    int
	logger *slog.Logger
}

type entryRow struct {
	ID        string          `db:"id"`
	Content   string          `db:"content"`
	Metadata  []byte          `db:"metadata"`
	Embedding pgvector.Vector `db:"embedding"`
	Distance  float64         `db:"distance"`
}

// Open validates the table name and creates the extension, table and indexes when missing.
func Open(ctx context.Context, db *sqlx.DB, cfg Config, logger *slog.Logger) (*Index, error) {
	if cfg.Table == "" {
		cfg.Table = "chunk_embeddings"
	}
	if !tableNameRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", domain.ErrInvalidInput, cfg.Table)
	}
	idx := &Index{db: db, table: cfg.Table, dim: cfg.Dimension, logger: logger}
	for _, stmt := range idx.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: migrate %s failed: %w", domain.ErrIndexIO, cfg.Table, err)
		}
	}
	return idx, nil
}

func (i *Index) schema() []string {
	column := "vector"
	if i.dim > 0 {
		column = fmt.Sprintf("vector(%d)", i.dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding %s NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, i.table, column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s ((metadata->>'source'))`, i.table, i.table),
	}
	if i.dim > 0 {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			i.table, i.table))
	}
	return stmts
}

func (i *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return i.write(ctx, nil, entries)
}

func (i *Index) Replace(ctx context.Context, filter domain.Filter, entries []domain.IndexEntry) error {
	return i.write(ctx, filter, entries)
}

func (i *Index) write(ctx context.Context, filter domain.Filter, entries []domain.IndexEntry) error {
	dim, err := vectorindex.ValidateEntries(entries)
	if err != nil {
		return err
	}
	if i.dim > 0 && dim != 0 && dim != i.dim {
		return vectorindex.DimensionError(dim, i.dim)
	}

	tx, err := i.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin failed: %w", domain.ErrIndexIO, err)
	}
	defer tx.Rollback()

	if filter != nil {
		if _, err := i.deleteWhere(ctx, tx, filter); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding
	`, i.table)
	for _, e := range entries {
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("%w: encode entry %s failed: %w", domain.ErrIndexIO, e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, e.ID, e.Content, meta, pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("%w: insert entry %s failed: %w", domain.ErrIndexIO, e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit failed: %w", domain.ErrIndexIO, err)
	}
	return nil
}

func (i *Index) DeleteWhere(ctx context.Context, filter domain.Filter) (int, error) {
	n, err := i.deleteWhere(ctx, i.db, filter)
	if err != nil {
		return 0, err
	}
	if i.logger != nil && n > 0 {
		i.logger.Debug("index entries deleted", "table", i.table, "count", n)
	}
	return n, nil
}

func (i *Index) deleteWhere(ctx context.Context, exec sqlx.ExecerContext, filter domain.Filter) (int, error) {
	meta, err := encodeMetadata(domain.Metadata(filter))
	if err != nil {
		return 0, fmt.Errorf("%w: encode filter failed: %w", domain.ErrIndexIO, err)
	}
	res, err := exec.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE metadata @> $1::jsonb`, i.table), meta)
	if err != nil {
		return 0, fmt.Errorf("%w: delete failed: %w", domain.ErrIndexIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete failed: %w", domain.ErrIndexIO, err)
	}
	return int(n), nil
}

func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	if k <= 0 {
		return nil, nil
	}
	if i.dim > 0 && len(vector) != i.dim {
		return nil, vectorindex.DimensionError(len(vector), i.dim)
	}
	query := fmt.Sprintf(`
		SELECT id, content, metadata, embedding, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, i.table)

	var rows []entryRow
	if err := i.db.SelectContext(ctx, &rows, query, pgvector.NewVector(vector), k); err != nil {
		return nil, fmt.Errorf("%w: search failed: %w", domain.ErrIndexIO, err)
	}
	hits := make([]domain.ScoredEntry, 0, len(rows))
	for _, row := range rows {
		meta, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: decode entry %s failed: %w", domain.ErrIndexIO, row.ID, err)
		}
		hits = append(hits, domain.ScoredEntry{
			Entry: domain.IndexEntry{
				ID:       row.ID,
				Vector:   row.Embedding.Slice(),
				Content:  row.Content,
				Metadata: meta,
			},
			Distance: normalizeDistance(row.Distance),
		})
	}
	// pgvector reports NaN for zero vectors; normalising can reorder the tail.
	vectorindex.SortByDistance(hits)
	return hits, nil
}

func (i *Index) Sources(ctx context.Context) ([]string, error) {
	var sources []string
	query := fmt.Sprintf(`
		SELECT DISTINCT metadata->>'source' AS source
		FROM %s
		WHERE metadata->>'source' IS NOT NULL
		ORDER BY source
	`, i.table)
	if err := i.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("%w: list sources failed: %w", domain.ErrIndexIO, err)
	}
	return sources, nil
}

func encodeMetadata(m domain.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw []byte) (domain.Metadata, error) {
	meta := domain.Metadata{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func normalizeDistance(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 1
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
