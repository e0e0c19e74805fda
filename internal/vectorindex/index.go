// Package vectorindex defines the vector index contract and the cosine ranking shared by its
// backends.
package vectorindex

import (
	"context"
	"math"
	"sort"

	"docqa/internal/domain"
)

// Index persists chunk vectors with their metadata.
//
// Implementations are safe for concurrent readers and writers. Search returns hits in
// ascending cosine distance, ties broken by entry ID.
type Index interface {
	// Upsert inserts or overwrites entries by ID. The entries are durable when it returns.
	Upsert(ctx context.Context, entries []domain.IndexEntry) error
	Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error)
	// DeleteWhere removes every entry matching the filter and reports how many were removed.
	DeleteWhere(ctx context.Context, filter domain.Filter) (int, error)
	// Replace atomically removes the entries matching filter and inserts entries.
	Replace(ctx context.Context, filter domain.Filter, entries []domain.IndexEntry) error
	// Sources lists the distinct metadata sources present in the index, sorted.
	Sources(ctx context.Context) ([]string, error)
}

// CosineDistance returns 1 - cosine similarity, in [0, 2]. A zero vector is at distance 1
// from everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Rank scores entries against the query and returns the k nearest.
func Rank(query []float32, entries []domain.IndexEntry, k int) []domain.ScoredEntry {
	if k <= 0 || len(entries) == 0 {
		return nil
	}
	scored := make([]domain.ScoredEntry, len(entries))
	for i, e := range entries {
		scored[i] = domain.ScoredEntry{Entry: e, Distance: CosineDistance(query, e.Vector)}
	}
	SortByDistance(scored)
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// SortByDistance orders hits by ascending distance, then by ID.
func SortByDistance(hits []domain.ScoredEntry) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Entry.ID < hits[j].Entry.ID
	})
}

// ValidateEntries checks that entries carry IDs and vectors of one dimension.
// It returns that dimension, or 0 for an empty slice.
func ValidateEntries(entries []domain.IndexEntry) (int, error) {
	dim := 0
	for _, e := range entries {
		if e.ID == "" {
			return 0, errMissingID
		}
		if len(e.Vector) == 0 {
			return 0, errEmptyVector
		}
		if dim == 0 {
			dim = len(e.Vector)
		} else if len(e.Vector) != dim {
			return 0, errDimensionMismatch
		}
	}
	return dim, nil
}
