// Package ai holds the language model and embedding clients used by the RAG pipeline.
package ai

import "context"

// Embedder maps text to fixed-dimension vectors. Implementations hold no per-call state.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a completion for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
