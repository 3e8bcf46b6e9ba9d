// Package collection stores retriever collections on a Redis-protocol vector engine.
// Every rebuild writes a fresh generation and then moves the collection pointer to it.
package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// store is the consumer interface for collections (ISP).
//
//nolint:interfacebloat // rebuild needs hash + index + search operations
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

const writeBatchSize = 500

// Repo implements the retriever's collection store over db.Store.
type Repo struct {
	store  store
	ns     string
	hnsw   HNSWConfig
	logger *zap.Logger
}

// New creates a collection repository whose keys live under namespace.
func New(s store, namespace string) *Repo {
	return &Repo{
		store:  s,
		ns:     namespace,
		hnsw:   HNSWConfig{M: 16, EFConstruct: 200},
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for post-switch cleanup failures.
func (r *Repo) WithLogger(l *zap.Logger) *Repo {
	if l != nil {
		r.logger = l
	}
	return r
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Ping checks the underlying store.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx) //nolint:wrapcheck // health check
}

// Rebuild replaces the collection contents with entries.
//
// The new generation is fully written and indexed before the metadata hash is
// pointed at it; until then readers keep seeing the previous generation. A
// failure before the switch removes the partial generation. Stale generations
// that cannot be dropped after the switch are logged and retried on the next
// rebuild. An empty entry list deletes the collection.
func (r *Repo) Rebuild(ctx context.Context, name string, dim int, entries []domain.IndexedEntry) error {
	if len(entries) == 0 {
		return r.Delete(ctx, name)
	}

	current, _, err := r.active(ctx, name)
	if err != nil {
		return err
	}
	gen := current.Generation + 1

	// Leftovers of an interrupted rebuild may occupy the target generation.
	if err := r.dropGeneration(ctx, name, gen); err != nil {
		return fmt.Errorf("clear generation %d: %w", gen, err)
	}

	if err := r.writeGeneration(ctx, name, gen, dim, entries); err != nil {
		return errors.Join(err, r.dropGeneration(ctx, name, gen))
	}

	next := meta{Generation: gen, VectorDim: dim, Chunks: len(entries)}
	if err := r.store.HSet(ctx, r.metaKey(name), metaToHash(name, next)); err != nil {
		return errors.Join(fmt.Errorf("switch collection %s: %w", name, err), r.dropGeneration(ctx, name, gen))
	}

	if current.Generation > 0 {
		if err := r.dropGeneration(ctx, name, current.Generation); err != nil {
			r.logger.Warn("drop previous generation failed",
				zap.String("collection", name), zap.Int("generation", current.Generation), zap.Error(err))
		}
	}
	if err := r.sweep(ctx, name, gen); err != nil {
		r.logger.Warn("sweep stale generations failed", zap.String("collection", name), zap.Error(err))
	}
	return nil
}

// Delete removes the collection pointer and every generation. Deleting an
// absent collection is a no-op.
func (r *Repo) Delete(ctx context.Context, name string) error {
	current, ok, err := r.active(ctx, name)
	if err != nil {
		return err
	}
	if err := r.store.Del(ctx, r.metaKey(name)); err != nil {
		return fmt.Errorf("del collection %s: %w", name, err)
	}
	if ok {
		if err := r.dropGeneration(ctx, name, current.Generation); err != nil {
			return err
		}
	}
	return r.sweep(ctx, name, 0)
}

// Search runs a KNN query against the active generation. A missing collection
// yields an empty, non-nil result.
func (r *Repo) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.QueryResult, error) {
	current, ok, err := r.active(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.QueryResult{}, nil
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(name, current.Generation),
		VectorField:  fieldVector,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldContent, fieldMetadata},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return []domain.QueryResult{}, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", name, err)
	}

	out := make([]domain.QueryResult, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, resultFromEntry(e))
	}
	return out, nil
}

func (r *Repo) active(ctx context.Context, name string) (meta, bool, error) {
	h, err := r.store.HGetAll(ctx, r.metaKey(name))
	if err != nil {
		return meta{}, false, fmt.Errorf("hgetall collection %s: %w", name, err)
	}
	m, ok := metaFromHash(h)
	return m, ok, nil
}

func (r *Repo) writeGeneration(ctx context.Context, name string, gen, dim int, entries []domain.IndexedEntry) error {
	def, err := db.NewIndex(r.indexName(name, gen)).
		Prefix(r.generationPrefix(name, gen)).
		Tag(fieldDocument).
		Numeric(fieldChunk).
		VectorHNSW(fieldVector, "", dim, db.DistanceCosine, r.hnsw.M, r.hnsw.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}

	for start := 0; start < len(entries); start += writeBatchSize {
		end := min(start+writeBatchSize, len(entries))
		items := make([]db.HashSetItem, 0, end-start)
		for n := start; n < end; n++ {
			fields, err := entryToHash(entries[n])
			if err != nil {
				return fmt.Errorf("chunk %d: %w", n, err)
			}
			items = append(items, db.HashSetItem{Key: r.chunkKey(name, gen, n), Fields: fields})
		}
		if err := r.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("write chunks %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// dropGeneration removes the index and chunk keys of one generation.
func (r *Repo) dropGeneration(ctx context.Context, name string, gen int) error {
	if err := r.store.DropIndex(ctx, r.indexName(name, gen)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}
	keys, err := r.store.Scan(ctx, r.generationPrefix(name, gen)+"*")
	if err != nil {
		return fmt.Errorf("scan generation %d: %w", gen, err)
	}
	for chunk := range slices.Chunk(keys, writeBatchSize) {
		if err := r.store.Del(ctx, chunk...); err != nil {
			return fmt.Errorf("del generation %d: %w", gen, err)
		}
	}
	return nil
}

// sweep drops every generation of name other than keep.
func (r *Repo) sweep(ctx context.Context, name string, keep int) error {
	keys, err := r.store.Scan(ctx, fmt.Sprintf("%s:%s:*", r.ns, name))
	if err != nil {
		return fmt.Errorf("scan collection %s: %w", name, err)
	}
	stale := make(map[int]struct{})
	for _, k := range keys {
		if gen, ok := r.generationOf(name, k); ok && gen != keep {
			stale[gen] = struct{}{}
		}
	}
	var errs []error
	for gen := range stale {
		errs = append(errs, r.dropGeneration(ctx, name, gen))
	}
	return errors.Join(errs...)
}
