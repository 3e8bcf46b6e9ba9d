package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/chunker"
	"github.com/kailas-cloud/vecrag/internal/config"
	dbQdrant "github.com/kailas-cloud/vecrag/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	logpkg "github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	collectionrepo "github.com/kailas-cloud/vecrag/internal/repository/collection"
	"github.com/kailas-cloud/vecrag/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/vecrag/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/vecrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/retriever"
	"github.com/kailas-cloud/vecrag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vecrag API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Connection.Driver),
		zap.String("db_addr", cfg.Connection.Addr()),
		zap.String("namespace", cfg.Connection.Namespace),
		zap.String("collection", cfg.Retrieval.Collection),
	)

	vs, err := openVectorStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer vs.close()

	// Wait for the vector store to be ready
	ctx := context.Background()
	if err := vs.waitForReady(ctx, time.Duration(cfg.Connection.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrieverMetrics()

	docEmbedder, err := buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, vs.cache, cfg.Connection.Namespace, logger)
	if err != nil {
		logger.Fatal("Failed to create document embedder", zap.Error(err))
	}
	queryEmbedder, err := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, vs.cache, cfg.Connection.Namespace, logger)
	if err != nil {
		logger.Fatal("Failed to create query embedder", zap.Error(err))
	}
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", vs.cache != nil),
	)

	splitter, err := chunker.New(chunker.Config{
		Strategy: cfg.Chunking.Strategy,
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.Overlap,
	})
	if err != nil {
		logger.Fatal("Invalid chunking configuration", zap.Error(err))
	}

	retrieverSvc := retriever.New(vs.collections, docEmbedder, splitter, retriever.Config{
		Dimensions: cfg.Embedding.Dimensions,
	}, logger).WithQueryEmbedder(queryEmbedder)

	healthSvc := healthuc.New(retrieverSvc, newEmbeddingHealthChecker(docEmbedder), logger)

	server := chiTransport.NewServer(retrieverSvc, healthSvc, cfg.Retrieval.Collection, logger).
		WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// vectorStore is the opened backend: the retriever's collection store,
// an optional key-value cache and lifecycle hooks.
type vectorStore struct {
	collections  retriever.CollectionStore
	cache        cacheStore
	waitForReady func(ctx context.Context, timeout time.Duration) error
	close        func()
}

// cacheStore is what the embedding cache needs from the database.
type cacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func openVectorStore(cfg config.Config, logger *zap.Logger) (*vectorStore, error) {
	conn := cfg.Connection
	switch conn.Driver {
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      []string{conn.Addr()},
			Username:   conn.Username,
			Password:   conn.Password,
			Standalone: conn.Standalone,
			Valkey:     conn.Driver == config.DriverValkey,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", conn.Driver, err)
		}
		repo := collectionrepo.New(s, conn.Namespace).
			WithHNSW(collectionrepo.HNSWConfig{
				M:           cfg.Retrieval.HNSWM,
				EFConstruct: cfg.Retrieval.HNSWEFConstruct,
			}).
			WithLogger(logger)
		vs := &vectorStore{collections: repo, waitForReady: s.WaitForReady, close: s.Close}
		if cfg.Embedding.Cache.Enabled {
			vs.cache = s
		}
		return vs, nil
	case config.DriverQdrant:
		s, err := dbQdrant.NewStore(dbQdrant.Config{
			Host:      conn.Host,
			Port:      conn.Port,
			APIKey:    conn.Password,
			UseTLS:    conn.UseTLS,
			Namespace: conn.Namespace,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create qdrant store: %w", err)
		}
		if cfg.Embedding.Cache.Enabled {
			logger.Warn("Embedding cache needs a Redis-protocol store, disabled for qdrant")
		}
		return &vectorStore{collections: s, waitForReady: s.WaitForReady, close: s.Close}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q: %w", conn.Driver, domain.ErrConfiguration)
	}
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	instruction string,
	cache cacheStore,
	namespace string,
	logger *zap.Logger,
) (domain.Embedder, error) {
	// Base provider (with transport metrics built-in)
	base, err := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Timeout:    time.Duration(embCfg.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	// Cached
	var embedder domain.Embedder = base
	if cache != nil {
		embedder = embcache.New(base, cache, embcache.Config{
			Namespace: namespace,
			Model:     embCfg.Model,
			TTL:       time.Duration(embCfg.Cache.TTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (usage + sub-batching)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embCfg.Provider, embCfg.Model, logger).
		WithMaxBatchSize(embCfg.MaxBatchSize)

	// Instruction prefix (outermost, so the cache key includes the instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction), nil
	}

	return embedder, nil
}
