// Package rag holds the retrieval-augmented pipelines: ingestion of uploaded files into the
// vector index, retrieval, answer composition and the query flow built on top of them.
package rag

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/ai"
	"docqa/internal/domain"
	"docqa/internal/vectorindex"
)

// Retriever embeds a query and returns the nearest index entries. It applies no threshold.
type Retriever struct {
	embedder ai.Embedder
	index    vectorindex.Index
}

func NewRetriever(embedder ai.Embedder, index vectorindex.Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns up to k results in ascending distance with Similarity = 1/(1+distance).
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	results := make([]domain.RetrievalResult, len(hits))
	for i, h := range hits {
		results[i] = domain.RetrievalResult{
			Entry:      h.Entry,
			Distance:   h.Distance,
			Similarity: domain.SimilarityFromDistance(h.Distance),
		}
	}
	return results, nil
}
