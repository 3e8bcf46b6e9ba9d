package collection

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// memStore is an in-memory consumer-interface implementation: hashes in a map,
// indexes as a set, KNN answered from a canned function.
type memStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	indexes map[string]*db.IndexDefinition

	pingErr        error
	hsetErr        error
	hsetMultiErr   error
	createIndexErr error
	scanErr        error
	searchFn       func(q *db.KNNQuery) (*db.SearchResult, error)

	searched []*db.KNNQuery
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]*db.IndexDefinition),
	}
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hsetErr != nil {
		return m.hsetErr
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiErr != nil {
		return m.hsetMultiErr
	}
	for _, it := range items {
		if err := m.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return nil
}

// Scan supports the trailing-star patterns the repo issues.
func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createIndexErr != nil {
		return m.createIndexErr
	}
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *memStore) DropIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	return nil
}

func (m *memStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.mu.Lock()
	m.searched = append(m.searched, q)
	_, exists := m.indexes[q.IndexName]
	m.mu.Unlock()
	if !exists {
		return nil, db.ErrIndexNotFound
	}
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	return &db.SearchResult{}, nil
}

func (m *memStore) keysWithPrefix(prefix string) []string {
	keys, _ := m.Scan(context.Background(), prefix+"*")
	return keys
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(ms, "USER"), ms
}

func testEntries(texts ...string) []domain.IndexedEntry {
	out := make([]domain.IndexedEntry, len(texts))
	for i, text := range texts {
		out[i] = domain.IndexedEntry{
			Chunk:  domain.Chunk{Text: text, Index: i},
			Vector: []float32{float32(i), 1, 0},
		}
	}
	return out
}
