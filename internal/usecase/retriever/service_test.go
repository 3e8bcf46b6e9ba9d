package retriever

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/vecrag/internal/chunker"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRetrieverMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockStore struct {
	rebuilt      map[string][]domain.IndexedEntry
	rebuildCalls int
	rebuildDim   int
	rebuildErr   error
	deleted      []string
	deleteErr    error
	hits         []domain.QueryResult
	searchErr    error
	searchK      int
	searchVector []float32
	pingErr      error
}

func newMockStore() *mockStore {
	return &mockStore{rebuilt: make(map[string][]domain.IndexedEntry)}
}

func (m *mockStore) Rebuild(_ context.Context, name string, dim int, entries []domain.IndexedEntry) error {
	m.rebuildCalls++
	m.rebuildDim = dim
	if m.rebuildErr != nil {
		return m.rebuildErr
	}
	m.rebuilt[name] = entries
	return nil
}

func (m *mockStore) Delete(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return m.deleteErr
}

func (m *mockStore) Search(_ context.Context, _ string, vector []float32, k int) ([]domain.QueryResult, error) {
	m.searchK = k
	m.searchVector = vector
	return m.hits, m.searchErr
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

type mockEmbedder struct {
	dim        int
	err        error
	batchCalls int
	texts      []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	m.texts = append(m.texts, text)
	return domain.EmbeddingResult{Embedding: make([]float32, m.dim), TotalTokens: 1}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	m.texts = append(m.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.dim)
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

const testDim = 8

func newTestService(t *testing.T, store *mockStore, emb *mockEmbedder) *Service {
	t.Helper()
	splitter, err := chunker.New(chunker.DefaultConfig())
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	return New(store, emb, splitter, Config{Dimensions: testDim}, nil)
}

func hits(scores ...float64) []domain.QueryResult {
	out := make([]domain.QueryResult, len(scores))
	for i, s := range scores {
		out[i] = domain.QueryResult{Text: fmt.Sprintf("chunk-%d", i), Score: s}
	}
	return out
}

// --- Index ---

func TestIndex_EmbedsEveryChunk(t *testing.T) {
	store := newMockStore()
	emb := &mockEmbedder{dim: testDim}
	svc := newTestService(t, store, emb)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	if err := svc.Index(context.Background(), "docs", domain.TextInput(text)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := svc.Split(domain.TextInput(text))
	entries := store.rebuilt["docs"]
	if len(entries) != len(chunks) || len(chunks) < 2 {
		t.Fatalf("expected %d entries, got %d", len(chunks), len(entries))
	}
	for i, e := range entries {
		if e.Chunk.Text != chunks[i].Text {
			t.Errorf("entry %d text mismatch", i)
		}
		if len(e.Vector) != testDim {
			t.Errorf("entry %d has %d dims", i, len(e.Vector))
		}
	}
	if emb.batchCalls != 1 {
		t.Errorf("expected one batch call, got %d", emb.batchCalls)
	}
	if store.rebuildDim != testDim {
		t.Errorf("rebuild dim = %d, want %d", store.rebuildDim, testDim)
	}
}

func TestIndex_Idempotent(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})
	in := domain.DocumentsInput(
		domain.Document{Content: "alpha", Metadata: map[string]string{"source": "a.txt"}},
		domain.Document{Content: "beta"},
	)

	if err := svc.Index(context.Background(), "docs", in); err != nil {
		t.Fatalf("first index: %v", err)
	}
	first := store.rebuilt["docs"]
	if err := svc.Index(context.Background(), "docs", in); err != nil {
		t.Fatalf("second index: %v", err)
	}
	second := store.rebuilt["docs"]

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 entries each time, got %d and %d", len(first), len(second))
	}
	if second[0].Chunk.Metadata["source"] != "a.txt" {
		t.Errorf("metadata lost: %+v", second[0].Chunk.Metadata)
	}
}

func TestIndex_EmptyInputRebuildsEmpty(t *testing.T) {
	store := newMockStore()
	emb := &mockEmbedder{dim: testDim}
	svc := newTestService(t, store, emb)

	if err := svc.Index(context.Background(), "docs", domain.TextInput("")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.rebuildCalls != 1 || len(store.rebuilt["docs"]) != 0 {
		t.Errorf("expected a single empty rebuild, got %d calls", store.rebuildCalls)
	}
	if emb.batchCalls != 0 {
		t.Error("embedder must not be called for empty input")
	}
}

type countingSplitter struct {
	Splitter
	calls int
}

func (c *countingSplitter) Split(in domain.Input) []domain.Chunk {
	c.calls++
	return c.Splitter.Split(in)
}

func TestIndex_EmptyDocumentsSkipSplitter(t *testing.T) {
	store := newMockStore()
	emb := &mockEmbedder{dim: testDim}
	inner, err := chunker.New(chunker.DefaultConfig())
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	splitter := &countingSplitter{Splitter: inner}
	svc := New(store, emb, splitter, Config{Dimensions: testDim}, nil)

	in := domain.DocumentsInput(domain.Document{Content: ""}, domain.Document{Content: ""})
	if err := svc.Index(context.Background(), "docs", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if splitter.calls != 0 {
		t.Errorf("splitter called %d times for empty documents", splitter.calls)
	}
	if store.rebuildCalls != 1 || len(store.rebuilt["docs"]) != 0 {
		t.Errorf("expected a single empty rebuild, got %d calls", store.rebuildCalls)
	}

	if err := svc.Index(context.Background(), "docs", domain.TextInput("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if splitter.calls != 1 {
		t.Errorf("expected one split for non-empty input, got %d", splitter.calls)
	}
}

func TestIndex_EmbeddingError(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{err: errors.New("401 unauthorized")})

	err := svc.Index(context.Background(), "docs", domain.TextInput("hello"))

	var ie *domain.IndexError
	if !errors.As(err, &ie) || ie.Collection != "docs" {
		t.Fatalf("expected IndexError for docs, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if store.rebuildCalls != 0 {
		t.Error("store must not be touched when embedding fails")
	}
}

func TestIndex_RateLimitedKeepsKind(t *testing.T) {
	provider := fmt.Errorf("429: %w", errors.Join(domain.ErrRateLimited, domain.ErrEmbeddingProviderError))
	svc := newTestService(t, newMockStore(), &mockEmbedder{err: provider})

	err := svc.Index(context.Background(), "docs", domain.TextInput("hello"))
	if !errors.Is(err, domain.ErrRateLimited) || !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected rate limited provider error, got %v", err)
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockEmbedder{dim: testDim + 1})

	err := svc.Index(context.Background(), "docs", domain.TextInput("hello"))
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("dimension mismatch is an embedding failure, got %v", err)
	}
}

func TestIndex_StoreError(t *testing.T) {
	store := newMockStore()
	store.rebuildErr = errors.New("connection refused")
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	err := svc.Index(context.Background(), "docs", domain.TextInput("hello"))
	if !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("expected ErrConnectivity, got %v", err)
	}
	var ie *domain.IndexError
	if !errors.As(err, &ie) {
		t.Errorf("expected IndexError, got %T", err)
	}
}

func TestIndex_InvalidCollection(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	err := svc.Index(context.Background(), "bad name", domain.TextInput("hello"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if store.rebuildCalls != 0 {
		t.Error("store must not be touched for an invalid name")
	}
}

func TestIndex_CountsChunks(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockEmbedder{dim: testDim})
	before := testutil.ToFloat64(metrics.RetrieverChunksIndexed)

	in := domain.DocumentsInput(domain.Document{Content: "a"}, domain.Document{Content: "b"}, domain.Document{Content: "c"})
	if err := svc.Index(context.Background(), "docs", in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.RetrieverChunksIndexed) - before; got != 3 {
		t.Errorf("expected 3 chunks counted, got %v", got)
	}
}

// --- Query ---

func TestQuery_StrictThreshold(t *testing.T) {
	store := newMockStore()
	store.hits = hits(0.1, 0.5, 0.7, 0.9)
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.Query(context.Background(), "docs", "question", 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"chunk-0", "chunk-1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQuery_UsesTopK(t *testing.T) {
	store := newMockStore()
	store.hits = hits(0.1, 0.2, 0.3, 0.4, 0.5, 0.6)
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.Query(context.Background(), "docs", "question", domain.DefaultThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchK != domain.DefaultTopK {
		t.Errorf("search k = %d, want %d", store.searchK, domain.DefaultTopK)
	}
	if len(got) != domain.DefaultTopK {
		t.Errorf("expected at most %d results, got %d", domain.DefaultTopK, len(got))
	}
	if len(store.searchVector) != testDim {
		t.Errorf("search vector has %d dims", len(store.searchVector))
	}
}

func TestQuery_NeverMoreThanFour(t *testing.T) {
	store := newMockStore()
	store.hits = hits(0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45)
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.Query(context.Background(), "docs", "question", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 results from 8 matching hits, got %d: %v", len(got), got)
	}
	if store.searchK != 4 {
		t.Errorf("search k = %d, want 4", store.searchK)
	}
}

func TestQuery_ThresholdAtMinimumYieldsNothing(t *testing.T) {
	store := newMockStore()
	store.hits = hits(0, 0.2)
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.Query(context.Background(), "docs", "question", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	store := newMockStore()
	store.hits = []domain.QueryResult{}
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.Query(context.Background(), "docs", "example query", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected [], got %#v", got)
	}
}

func TestQueryResults_KeepsScoresAndMetadata(t *testing.T) {
	store := newMockStore()
	store.hits = []domain.QueryResult{{Text: "a", Score: 0.25, Metadata: map[string]string{"source": "x"}}}
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	got, err := svc.QueryResults(context.Background(), "docs", "q", 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Score != 0.25 || got[0].Metadata["source"] != "x" {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestQuery_EmbeddingError(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{err: errors.New("boom")})

	_, err := svc.Query(context.Background(), "docs", "q", 1.0)
	var qe *domain.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestQuery_StoreError(t *testing.T) {
	store := newMockStore()
	store.searchErr = errors.New("i/o timeout")
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	_, err := svc.Query(context.Background(), "docs", "q", 1.0)
	if !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("expected ErrConnectivity, got %v", err)
	}
}

func TestQuery_EmptyText(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockEmbedder{dim: testDim})

	_, err := svc.Query(context.Background(), "docs", "", 1.0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// --- Delete / Ping ---

func TestDelete(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})

	if err := svc.Delete(context.Background(), "docs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "docs" {
		t.Errorf("unexpected deletes %v", store.deleted)
	}

	store.deleteErr = errors.New("down")
	if err := svc.Delete(context.Background(), "docs"); !errors.Is(err, domain.ErrConnectivity) {
		t.Errorf("expected ErrConnectivity, got %v", err)
	}
}

func TestPing(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, &mockEmbedder{dim: testDim})
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.pingErr = errors.New("refused")
	if err := svc.Ping(context.Background()); !errors.Is(err, domain.ErrConnectivity) {
		t.Errorf("expected ErrConnectivity, got %v", err)
	}
}

func TestFilterByThreshold(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		threshold float64
		k         int
		want      int
	}{
		{"all below", []float64{0.1, 0.2}, 1, 4, 2},
		{"equal excluded", []float64{0.5, 0.5}, 0.5, 4, 0},
		{"capped at k", []float64{0.1, 0.1, 0.1, 0.1, 0.1}, 1, 4, 4},
		{"none", nil, 1, 4, 0},
		{"negative threshold", []float64{0}, -0.1, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterByThreshold(hits(tt.scores...), tt.threshold, tt.k)
			if len(got) != tt.want {
				t.Errorf("got %d results, want %d", len(got), tt.want)
			}
			for _, r := range got {
				if r.Score >= tt.threshold {
					t.Errorf("score %v not below threshold %v", r.Score, tt.threshold)
				}
			}
		})
	}
}

func TestQuery_UsesQueryEmbedder(t *testing.T) {
	store := newMockStore()
	store.hits = hits(0.1)
	docs := &mockEmbedder{dim: testDim}
	queries := &mockEmbedder{dim: testDim}
	svc := newTestService(t, store, docs).WithQueryEmbedder(queries)

	if _, err := svc.Query(context.Background(), "docs", "question", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries.texts) != 1 || queries.texts[0] != "question" {
		t.Errorf("query embedder got %v", queries.texts)
	}
	if len(docs.texts) != 0 {
		t.Errorf("indexing embedder must not see queries, got %v", docs.texts)
	}
}
