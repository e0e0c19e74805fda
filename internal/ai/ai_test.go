package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

func embeddingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		calls.Add(1)

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// reversed order exercises index-based placement
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Index: j, Embedding: []float32{float32(len(req.Input[j])), 1, 0}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestRemoteEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingServer(t, &calls)
	defer srv.Close()

	e := NewRemoteEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{
		BaseURL:   srv.URL + "/v1/",
		APIKey:    "key",
		Model:     "test-embed",
		BatchSize: 2,
	})

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, e.Dimension())

	single, err := e.Embed(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, float32(4), single[0])
}

func TestRemoteEmbedder_RejectsEmptyInput(t *testing.T) {
	e := NewRemoteEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := e.EmbedBatch(context.Background(), []string{"ok", "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRemoteEmbedder_FailuresAreUnavailable(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		e := NewRemoteEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{BaseURL: srv.URL})
		_, err := e.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		e := NewRemoteEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{
			BaseURL: srv.URL,
			Timeout: 50 * time.Millisecond,
		})
		_, err := e.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}},
			})
		}))
		defer srv.Close()

		e := NewRemoteEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{BaseURL: srv.URL, Dimensions: 3})
		_, err := e.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})
}

func TestChatGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model       string        `json:"model"`
			Temperature float64       `json:"temperature"`
			Messages    []ChatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
		if !assert.Len(t, req.Messages, 1) {
			return
		}
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "the prompt", req.Messages[0].Content)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "  forty-two \n"}}},
		})
	}))
	defer srv.Close()

	g := NewChatGenerator(NewOpenAICompatibleClient(), ChatConfig{
		BaseURL: srv.URL, Model: "gpt-test", Temperature: 0.2,
	}, time.Second)
	out, err := g.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "forty-two", out)
}

func TestChatGenerator_Failures(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		g := NewChatGenerator(NewOpenAICompatibleClient(), ChatConfig{}, 0)
		_, err := g.Generate(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()
		g := NewChatGenerator(NewOpenAICompatibleClient(), ChatConfig{BaseURL: srv.URL, Model: "m"}, 0)
		_, err := g.Generate(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		g := NewChatGenerator(NewOpenAICompatibleClient(), ChatConfig{BaseURL: srv.URL, Model: "m"}, 50*time.Millisecond)
		_, err := g.Generate(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	})
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "Vector search with cosine distance")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "vector SEARCH with cosine distance!")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "tokenisation is case and punctuation insensitive")
	assert.Len(t, a1, 64)

	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	zero, err := e.Embed(ctx, "!!!")
	require.NoError(t, err)
	for _, v := range zero {
		assert.Zero(t, v)
	}

	batch, err := e.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Embed(cancelled, "x")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
