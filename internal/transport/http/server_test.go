package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
)

func llmServer(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			*prompts = append(*prompts, req.Messages[0].Content)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "Paris."}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, llmURL string) *bootstrap.App {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "absent.toml"))
	t.Setenv("GIN_MODE", "test")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "data", "docqa.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("LLM_BASE_URL", llmURL)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_PROVIDER", "hash")

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := bootstrap.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	var prompts []string
	a := newTestApp(t, llmServer(t, &prompts).URL)
	router := NewRouter(a)

	rec := do(t, router, uploadRequest(t, "france.txt", "The capital of France is Paris. It lies on the Seine."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"File 'france.txt' processed and stored.","chunks":1}`, rec.Body.String())
	_, err := os.Stat(filepath.Join(a.Config.App.UploadDir, "france.txt"))
	require.NoError(t, err)

	rec = do(t, router, uploadRequest(t, "image.png", "not text"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"What is the capital of France?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = do(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var answer struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Sources  []struct {
			Source     string  `json:"source"`
			Confidence float64 `json:"confidence"`
			Content    string  `json:"content"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Paris.", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "france.txt", answer.Sources[0].Source)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "The capital of France is Paris.")
	assert.Contains(t, prompts[0], "Question: What is the capital of France?")

	a.Query.Wait()
	rec = do(t, router, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "What is the capital of France?", history[0]["question"])

	rec = do(t, router, httptest.NewRequest(http.MethodGet, "/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		NumUploads             int `json:"num_uploads"`
		MostReferencedDocument []struct {
			Filename string `json:"filename"`
			Count    int    `json:"count"`
		} `json:"most_referenced_document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.NumUploads)
	require.Len(t, stats.MostReferencedDocument, 1)
	assert.Equal(t, "france.txt", stats.MostReferencedDocument[0].Filename)

	rec = do(t, router, httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"filename":"france.txt"`)

	rec = do(t, router, httptest.NewRequest(http.MethodDelete, "/delete-document/france.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sources, err := a.Index.Sources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sources)

	rec = do(t, router, httptest.NewRequest(http.MethodDelete, "/delete-document/france.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	var prompts []string
	router := NewRouter(newTestApp(t, llmServer(t, &prompts).URL))

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := do(t, router, req)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.test")
	rec = do(t, router, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
