package vecrag

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/chunker"
	dbQdrant "github.com/kailas-cloud/vecrag/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	collectionrepo "github.com/kailas-cloud/vecrag/internal/repository/collection"
	"github.com/kailas-cloud/vecrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecrag/internal/usecase/embedding"
	"github.com/kailas-cloud/vecrag/internal/usecase/retriever"
)

// Environment variables read by the built-in OpenAI embedder.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIModel   = "OPENAI_EMBEDDING_MODEL"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
)

// Internal interface for substitution in tests.
type retrieverUseCase interface {
	Split(in domain.Input) []domain.Chunk
	Index(ctx context.Context, collection string, in domain.Input) error
	Query(ctx context.Context, collection, text string, threshold float64) ([]string, error)
	QueryResults(ctx context.Context, collection, text string, threshold float64) ([]domain.QueryResult, error)
	Delete(ctx context.Context, collection string) error
	Ping(ctx context.Context) error
}

// Client is the vecrag SDK entry point. It is bound to one collection.
type Client struct {
	retriever  retrieverUseCase
	collection string
	closeFn    func()
	obs        *observer
}

// New creates a Client and connects to the vector store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		collection:       domain.DefaultCollectionName,
		vectorDimensions: domain.DefaultDimensions,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conn := cfg.conn.withDefaults()
	if err := conn.validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateCollectionName(cfg.collection); err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	docEmb, queryEmb, err := buildEmbedders(cfg, logger)
	if err != nil {
		return nil, err
	}
	splitter, err := buildSplitter(cfg)
	if err != nil {
		return nil, err
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	b, err := openBackend(conn, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := b.waitForReady(ctx, conn.ReadinessTimeout); err != nil {
		b.close()
		return nil, fmt.Errorf("vecrag: vector store not ready: %w: %w", domain.ErrConnectivity, err)
	}

	svc := retriever.New(b.collections, docEmb, splitter, retriever.Config{
		Dimensions: cfg.vectorDimensions,
	}, logger).WithQueryEmbedder(queryEmb)

	return &Client{
		retriever:  svc,
		collection: cfg.collection,
		closeFn:    b.close,
		obs:        obs,
	}, nil
}

// backend is an opened vector store behind the retriever's collection contract.
type backend struct {
	collections  retriever.CollectionStore
	waitForReady func(ctx context.Context, timeout time.Duration) error
	close        func()
}

func openBackend(conn Connection, cfg *clientConfig, logger *zap.Logger) (*backend, error) {
	switch conn.Driver {
	case DriverRedis, DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      []string{conn.Addr()},
			Username:   conn.Username,
			Password:   conn.Password,
			Standalone: conn.Standalone,
			Valkey:     conn.Driver == DriverValkey,
		})
		if err != nil {
			return nil, fmt.Errorf("vecrag: create %s store: %w: %w", conn.Driver, domain.ErrConnectivity, err)
		}
		repo := collectionrepo.New(s, conn.Namespace).
			WithHNSW(collectionrepo.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEFConstruct}).
			WithLogger(logger)
		return &backend{collections: repo, waitForReady: s.WaitForReady, close: s.Close}, nil
	case DriverQdrant:
		s, err := dbQdrant.NewStore(dbQdrant.Config{
			Host:      conn.Host,
			Port:      conn.Port,
			APIKey:    conn.Password,
			UseTLS:    conn.UseTLS,
			Namespace: conn.Namespace,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("vecrag: create qdrant store: %w: %w", domain.ErrConnectivity, err)
		}
		return &backend{collections: s, waitForReady: s.WaitForReady, close: s.Close}, nil
	default:
		return nil, fmt.Errorf("vecrag: unknown driver %q: %w", conn.Driver, domain.ErrConfiguration)
	}
}

// buildEmbedders returns the indexing and query embedders. They differ only
// by the instruction prefix.
func buildEmbedders(cfg *clientConfig, logger *zap.Logger) (domain.Embedder, domain.Embedder, error) {
	var (
		base     domain.Embedder
		provider = "custom"
		model    = "custom"
	)
	if cfg.embedder != nil {
		base = adaptEmbedder(cfg.embedder)
	} else {
		model = cmp.Or(cfg.openAI.model, os.Getenv(EnvOpenAIModel), domain.DefaultModel)
		provider = "openai"
		emb, err := openai.NewEmbedder(&openai.Config{
			APIKey:     cmp.Or(cfg.openAI.apiKey, os.Getenv(EnvOpenAIKey)),
			BaseURL:    cmp.Or(cfg.openAI.baseURL, os.Getenv(EnvOpenAIBaseURL)),
			Model:      model,
			Dimensions: cfg.vectorDimensions,
			Provider:   provider,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("vecrag: %w", err)
		}
		base = emb
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(base, provider, model, logger).
		WithMaxBatchSize(cfg.maxBatchSize)

	var docs, queries domain.Embedder = instrumented, instrumented
	if cfg.docPrefix != "" {
		docs = domain.NewInstructionEmbedder(instrumented, cfg.docPrefix)
	}
	if cfg.queryPrefix != "" {
		queries = domain.NewInstructionEmbedder(instrumented, cfg.queryPrefix)
	}
	return docs, queries, nil
}

func buildSplitter(cfg *clientConfig) (chunker.Splitter, error) {
	ccfg := chunker.DefaultConfig()
	if cfg.chunkStrategy != "" {
		ccfg.Strategy = cfg.chunkStrategy
	}
	if cfg.chunkSize != 0 || cfg.chunkOverlap != 0 {
		ccfg.Size = cfg.chunkSize
		ccfg.Overlap = cfg.chunkOverlap
	}
	s, err := chunker.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}
	return s, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Collection returns the collection this client reads and writes.
func (c *Client) Collection() string { return c.collection }

// Split returns the chunks Index would store for in, without embedding anything.
func (c *Client) Split(in Input) []Chunk {
	return c.retriever.Split(in)
}

// Index rebuilds the collection from in. An input without content leaves
// the collection empty. Failures are *IndexError.
func (c *Client) Index(ctx context.Context, in Input) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", c.collection, start, err) }()

	return c.retriever.Index(ctx, c.collection, in) //nolint:wrapcheck // already *IndexError
}

// Query returns the texts of at most four chunks closest to text whose
// distance is strictly below threshold, closest first. A collection that was
// never indexed yields an empty slice. Failures are *QueryError.
func (c *Client) Query(ctx context.Context, text string, threshold float64) (texts []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", c.collection, start, err) }()

	return c.retriever.Query(ctx, c.collection, text, threshold) //nolint:wrapcheck // already *QueryError
}

// QueryResults is Query with distances and chunk metadata. Empty text fails
// with ErrInvalidInput.
func (c *Client) QueryResults(ctx context.Context, text string, threshold float64) (results []QueryResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", c.collection, start, err) }()

	return c.retriever.QueryResults(ctx, c.collection, text, threshold) //nolint:wrapcheck // already *QueryError
}

// Delete drops the collection. Deleting a missing collection is not an error.
func (c *Client) Delete(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", c.collection, start, err) }()

	return c.retriever.Delete(ctx, c.collection) //nolint:wrapcheck // already *IndexError
}

// Ping checks vector store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", c.collection, start, err) }()

	if err = c.retriever.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
