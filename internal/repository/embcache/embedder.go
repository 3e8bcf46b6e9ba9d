// Package embcache caches embedding vectors in the Redis-protocol store.
//
// Keys are {namespace}:emb_cache:{model}:{sha256(text)} and values are
// little-endian float32 blobs, the same layout the vector hashes use.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config scopes cache keys. Vectors of different models never share a key.
type Config struct {
	Namespace string
	Model     string
	TTL       time.Duration // zero keeps entries forever
}

// CachedEmbedder serves repeated texts from the store and forwards the rest.
// Hits report zero tokens.
type CachedEmbedder struct {
	inner   domain.Embedder
	store   store
	prefix  string
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New wraps inner with a cache. lookups, when non-nil, is counted by
// "result" label ("hit" or "miss").
func New(inner domain.Embedder, s store, cfg Config, lookups *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		store:   s,
		prefix:  cfg.Namespace + ":emb_cache:" + cfg.Model + ":",
		ttl:     cfg.TTL,
		lookups: lookups,
		logger:  logger,
	}
}

// Embed is BatchEmbed for a single text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed fills hits from the store and embeds all misses in one inner
// call. Token counts cover the misses only.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	keys := make([]string, len(texts))
	var pending []int
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out.Embeddings[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	misses := make([]string, len(pending))
	for j, i := range pending {
		misses[j] = texts[i]
	}
	res, err := domain.EmbedAll(ctx, c.inner, misses)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(misses), err)
	}
	if len(res.Embeddings) != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed uncached texts: got %d vectors for %d texts: %w",
			len(res.Embeddings), len(misses), domain.ErrEmbeddingProviderError)
	}

	for j, i := range pending {
		out.Embeddings[i] = res.Embeddings[j]
		c.put(ctx, keys[i], res.Embeddings[j])
	}
	out.PromptTokens, out.TotalTokens = res.PromptTokens, res.TotalTokens
	return out, nil
}

// HealthCheck forwards to the inner embedder when it can be checked.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// lookup treats every read failure as a miss; only unexpected ones are logged.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	default:
		vec, derr := decode(data)
		if derr == nil {
			c.count("hit")
			return vec, true
		}
		c.logger.Warn("Discarding malformed cached embedding", zap.String("key", key), zap.Error(derr))
	}
	c.count("miss")
	return nil, false
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetWithTTL(ctx, key, encode(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

func encode(v []float32) []byte {
	buf := make([]byte, 0, len(v)*4)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("blob of %d bytes is not a float32 vector", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
