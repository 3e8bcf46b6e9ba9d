package vecrag

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// --- retrieverUseCase mock ---

type mockRetriever struct {
	splitFn        func(in domain.Input) []domain.Chunk
	indexFn        func(ctx context.Context, collection string, in domain.Input) error
	queryFn        func(ctx context.Context, collection, text string, threshold float64) ([]string, error)
	queryResultsFn func(ctx context.Context, collection, text string, threshold float64) ([]domain.QueryResult, error)
	deleteFn       func(ctx context.Context, collection string) error
	pingFn         func(ctx context.Context) error
}

func (m *mockRetriever) Split(in domain.Input) []domain.Chunk {
	return m.splitFn(in)
}

func (m *mockRetriever) Index(ctx context.Context, collection string, in domain.Input) error {
	return m.indexFn(ctx, collection, in)
}

func (m *mockRetriever) Query(ctx context.Context, collection, text string, threshold float64) ([]string, error) {
	return m.queryFn(ctx, collection, text, threshold)
}

func (m *mockRetriever) QueryResults(
	ctx context.Context, collection, text string, threshold float64,
) ([]domain.QueryResult, error) {
	return m.queryResultsFn(ctx, collection, text, threshold)
}

func (m *mockRetriever) Delete(ctx context.Context, collection string) error {
	return m.deleteFn(ctx, collection)
}

func (m *mockRetriever) Ping(ctx context.Context) error {
	return m.pingFn(ctx)
}

// --- Embedder mocks ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockBatchEmbedder struct {
	mockEmbedder
	batchFn func(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	return m.batchFn(ctx, texts)
}

// recordingEmbedder returns zero vectors of dim and remembers every text.
type recordingEmbedder struct {
	dim   int
	texts []string
}

func (r *recordingEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	r.texts = append(r.texts, text)
	return EmbeddingResult{Embedding: make([]float32, r.dim), TotalTokens: 1}, nil
}

func newTestClient(r retrieverUseCase) *Client {
	obs, _ := newObserver(nil, nil)
	return &Client{retriever: r, collection: "docs", obs: obs}
}
