// Package retriever indexes chunked input into a vector store and answers
// threshold-filtered similarity queries against it.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/chunker"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

const (
	opIndex = "index"
	opQuery = "query"
)

// Config holds retrieval parameters. The number of nearest chunks a query
// considers is fixed at domain.DefaultTopK.
type Config struct {
	Dimensions int
}

// Service is the retriever.
type Service struct {
	store    CollectionStore
	embed    domain.Embedder
	queryEmb domain.Embedder
	splitter Splitter
	dim      int
	logger   *zap.Logger
}

// New creates a retriever. Zero config values fall back to the defaults.
func New(store CollectionStore, embed domain.Embedder, splitter Splitter, cfg Config, logger *zap.Logger) *Service {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.DefaultDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		embed:    embed,
		queryEmb: embed,
		splitter: splitter,
		dim:      cfg.Dimensions,
		logger:   logger,
	}
}

// WithQueryEmbedder embeds query text with e instead of the indexing embedder.
// Both must produce vectors of the same model and size.
func (s *Service) WithQueryEmbedder(e domain.Embedder) *Service {
	if e != nil {
		s.queryEmb = e
	}
	return s
}

// Split chunks in without touching the store.
func (s *Service) Split(in domain.Input) []domain.Chunk {
	return s.splitter.Split(in)
}

// Index chunks in, embeds every chunk and rebuilds the collection from them.
// Input without content empties the collection.
func (s *Service) Index(ctx context.Context, collection string, in domain.Input) error {
	if in.IsEmpty() {
		s.logger.Debug("empty input, clearing collection",
			zap.String("collection", collection),
			zap.Stringer("input", in.Kind()),
		)
		return s.IndexChunks(ctx, collection, nil)
	}
	return s.IndexChunks(ctx, collection, s.Split(in))
}

// IndexChunks embeds already split chunks and rebuilds the collection from them.
func (s *Service) IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk) (err error) {
	start := time.Now()
	defer func() { observe(opIndex, start, err) }()

	if err := domain.ValidateCollectionName(collection); err != nil {
		return &domain.IndexError{Collection: collection, Err: err}
	}

	entries, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return &domain.IndexError{Collection: collection, Err: err}
	}

	if err := s.store.Rebuild(ctx, collection, s.dim, entries); err != nil {
		return &domain.IndexError{Collection: collection, Err: storeError("rebuild", err)}
	}

	metrics.RetrieverChunksIndexed.Add(float64(len(entries)))
	s.logger.Debug("collection indexed",
		zap.String("collection", collection),
		zap.Int("chunks", len(entries)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Query returns the texts of the nearest chunks whose distance to text is
// strictly below threshold, closest first. Empty text fails with
// domain.ErrInvalidInput.
func (s *Service) Query(ctx context.Context, collection, text string, threshold float64) ([]string, error) {
	results, err := s.QueryResults(ctx, collection, text, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out, nil
}

// QueryResults is Query with scores and chunk metadata. At most
// domain.DefaultTopK results are returned. A missing collection yields an
// empty, non-nil slice; empty text fails with domain.ErrInvalidInput.
func (s *Service) QueryResults(
	ctx context.Context, collection, text string, threshold float64,
) (results []domain.QueryResult, err error) {
	start := time.Now()
	defer func() { observe(opQuery, start, err) }()

	if err := domain.ValidateCollectionName(collection); err != nil {
		return nil, &domain.QueryError{Collection: collection, Err: err}
	}
	if text == "" {
		return nil, &domain.QueryError{
			Collection: collection,
			Err:        fmt.Errorf("query text is empty: %w", domain.ErrInvalidInput),
		}
	}

	res, err := s.queryEmb.Embed(ctx, text)
	if err != nil {
		return nil, &domain.QueryError{Collection: collection, Err: embeddingError(err)}
	}
	if err := domain.CheckDimensions([][]float32{res.Embedding}, s.dim); err != nil {
		return nil, &domain.QueryError{Collection: collection, Err: embeddingError(err)}
	}

	hits, err := s.store.Search(ctx, collection, res.Embedding, domain.DefaultTopK)
	if err != nil {
		return nil, &domain.QueryError{Collection: collection, Err: storeError("search", err)}
	}

	results = filterByThreshold(hits, threshold, domain.DefaultTopK)
	metrics.RetrieverQueryHits.Observe(float64(len(results)))

	s.logger.Debug("collection queried",
		zap.String("collection", collection),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(results)),
		zap.Float64("threshold", threshold),
	)
	return results, nil
}

// Delete removes a collection. Deleting an absent collection is a no-op.
func (s *Service) Delete(ctx context.Context, collection string) error {
	if err := domain.ValidateCollectionName(collection); err != nil {
		return &domain.IndexError{Collection: collection, Err: err}
	}
	if err := s.store.Delete(ctx, collection); err != nil {
		return &domain.IndexError{Collection: collection, Err: storeError("delete", err)}
	}
	return nil
}

// Ping checks the vector store.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexedEntry, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	res, err := domain.EmbedAll(ctx, s.embed, chunker.Texts(chunks))
	if err != nil {
		return nil, embeddingError(err)
	}
	if len(res.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("got %d vectors for %d chunks: %w",
			len(res.Embeddings), len(chunks), domain.ErrEmbeddingProviderError)
	}
	if err := domain.CheckDimensions(res.Embeddings, s.dim); err != nil {
		return nil, embeddingError(err)
	}

	entries := make([]domain.IndexedEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.IndexedEntry{Chunk: c, Vector: res.Embeddings[i]}
	}
	return entries, nil
}

// filterByThreshold keeps hits with score < threshold in store order, at most k.
func filterByThreshold(hits []domain.QueryResult, threshold float64, k int) []domain.QueryResult {
	out := make([]domain.QueryResult, 0, min(len(hits), k))
	for _, h := range hits {
		if len(out) == k {
			break
		}
		if h.Score < threshold {
			out = append(out, h)
		}
	}
	return out
}

// embeddingError classifies err as an embedding failure unless it already
// carries a kind the caller can act on.
func embeddingError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingProviderError) ||
		errors.Is(err, domain.ErrConfiguration) ||
		errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingProviderError, err)
}

func storeError(op string, err error) error {
	if errors.Is(err, domain.ErrConnectivity) || errors.Is(err, domain.ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrConnectivity, err)
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RetrieverOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.RetrieverOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
