package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// embeddingRequest is the subset of the request body the tests inspect.
type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func writeEmbeddings(w http.ResponseWriter, tokens int, items ...embeddingItem) {
	resp := openaiEmbeddingResponse{Object: "list", Model: "test-model", Data: items}
	resp.Usage.PromptTokens = tokens
	resp.Usage.TotalTokens = tokens
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestEmbedder(t *testing.T, url, model string, dims int) *Embedder {
	t.Helper()
	emb, err := NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      model,
		Dimensions: dims,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	return emb
}

func TestNewEmbedder_MissingAPIKey(t *testing.T) {
	_, err := NewEmbedder(&Config{Model: "test-model"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewEmbedder_DefaultModel(t *testing.T) {
	emb, err := NewEmbedder(&Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(emb.model) != domain.DefaultModel {
		t.Errorf("model = %s, want %s", emb.model, domain.DefaultModel)
	}
	if emb.provider != "openai" {
		t.Errorf("provider = %s, want openai", emb.provider)
	}
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Dimensions != 4 {
			t.Errorf("expected dimensions=4, got %d", req.Dimensions)
		}
		writeEmbeddings(w, 10, embeddingItem{Object: "embedding", Embedding: expectedVec})
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "text-embedding-3-small", 4)

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 10 || result.TotalTokens != 10 {
		t.Errorf("unexpected usage: prompt=%d total=%d", result.PromptTokens, result.TotalTokens)
	}
}

func TestEmbedder_AdaOmitsDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, ok := raw["dimensions"]; ok {
			t.Errorf("ada-002 requests must not carry dimensions, got %v", raw["dimensions"])
		}
		writeEmbeddings(w, 1, embeddingItem{Embedding: []float32{1}})
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "text-embedding-ada-002", 1536)
	if _, err := emb.Embed(context.Background(), "hi"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
}

func TestEmbedder_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEmbeddings(w, 0)
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)
	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_BatchEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("expected 2 inputs in one call, got %d", len(req.Input))
		}
		// Reverse order on the wire: the client restores it from the index.
		writeEmbeddings(w, 20,
			embeddingItem{Object: "embedding", Embedding: []float32{0.3, 0.4}, Index: 1},
			embeddingItem{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0},
		)
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)

	result, err := emb.BatchEmbed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 {
		t.Errorf("expected first vec[0]=0.1, got %f", result.Embeddings[0][0])
	}
	if result.Embeddings[1][0] != 0.3 {
		t.Errorf("expected second vec[0]=0.3, got %f", result.Embeddings[1][0])
	}
	if result.TotalTokens != 20 {
		t.Errorf("expected TotalTokens=20, got %d", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_Empty(t *testing.T) {
	emb := newTestEmbedder(t, "http://unused", "test-model", 0)

	result, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEmbeddings(w, 5, embeddingItem{Object: "embedding", Embedding: []float32{0.1}})
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_BatchEmbed_DuplicateIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEmbeddings(w, 5,
			embeddingItem{Embedding: []float32{0.1}, Index: 0},
			embeddingItem{Embedding: []float32{0.2}, Index: 0},
		)
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)
	if _, err := emb.BatchEmbed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for duplicate indexes")
	}
}

func TestEmbedder_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("rate limit must also be a provider error, got %v", err)
	}
}

func TestEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream model is loading"}`))
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if errors.Is(err, domain.ErrRateLimited) {
		t.Error("502 must not be reported as rate limiting")
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, "test-model", 0)
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"bad input"}`)); got != "bad input" {
		t.Errorf("got %q, want bad input", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSupportsDimensions(t *testing.T) {
	if supportsDimensions("text-embedding-ada-002") {
		t.Error("ada-002 does not accept dimensions")
	}
	if !supportsDimensions("text-embedding-3-large") {
		t.Error("text-embedding-3 models accept dimensions")
	}
}
