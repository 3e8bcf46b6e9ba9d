package embcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// fakeProvider hands out a vector derived from the text length and records
// every batch it receives.
type fakeProvider struct {
	tokensPerText int
	err           error
	short         bool // return one vector too few
	batches       [][]string
}

func (f *fakeProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := f.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0], TotalTokens: res.TotalTokens}, nil
}

func (f *fakeProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := domain.BatchEmbeddingResult{
		Embeddings:   make([][]float32, n),
		PromptTokens: f.tokensPerText * len(texts),
		TotalTokens:  f.tokensPerText * len(texts),
	}
	for i := range n {
		out.Embeddings[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

// memStore is an in-memory KV store with optional failure injection.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
	writes  int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	m.writes++
	return nil
}

var errStoreDown = errors.New("store down")

func newCache(t *testing.T, inner domain.Embedder, cfg Config) (*CachedEmbedder, *memStore) {
	t.Helper()
	if cfg.Namespace == "" {
		cfg.Namespace = "USER"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-ada-002"
	}
	ms := newMemStore()
	return New(inner, ms, cfg, nil, zap.NewNop()), ms
}
