package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"docqa/internal/domain"
)

const defaultEmbeddingBatchSize = 10 // DashScope and similar APIs often limit batch size

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	// RequestsPerSecond paces embedding requests; zero disables pacing.
	RequestsPerSecond float64
}

// RemoteEmbedder embeds text through the /embeddings endpoint.
type RemoteEmbedder struct {
	client  *OpenAICompatibleClient
	cfg     EmbeddingConfig
	limiter *rate.Limiter
	dim     atomic.Int64
}

func NewRemoteEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *RemoteEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbeddingBatchSize
	}
	e := &RemoteEmbedder{client: client, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	e.dim.Store(int64(cfg.Dimensions))
	return e
}

// Dimension returns the configured dimension, or the one observed in the first response.
func (e *RemoteEmbedder) Dimension() int {
	return int(e.dim.Load())
}

// Embed returns the embedding vector for the given text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in provider-sized batches and returns one vector per input, in order.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: embedding input %d is empty", domain.ErrInvalidInput, i)
		}
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.cfg.BatchSize {
		end := i + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.requestBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *RemoteEmbedder) requestBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for embedding rate limit failed: %w", err)
		}
	}
	reqBody := map[string]interface{}{
		"model": e.cfg.Model,
		"input": texts,
	}
	if e.cfg.Dimensions > 0 {
		reqBody["dimensions"] = e.cfg.Dimensions
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.postJSON(ctx, e.cfg.BaseURL, e.cfg.APIKey, "/embeddings", reqBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || result[idx] != nil {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding in response")
		}
		if err := e.checkDimension(len(d.Embedding)); err != nil {
			return nil, err
		}
		result[idx] = d.Embedding
	}
	for i := range result {
		if result[i] == nil {
			return nil, fmt.Errorf("embedding for input %d missing in response", i)
		}
	}
	return result, nil
}

func (e *RemoteEmbedder) checkDimension(n int) error {
	if e.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := e.dim.Load(); int64(n) != want {
		return fmt.Errorf("embedding dimension %d, expected %d", n, want)
	}
	return nil
}
