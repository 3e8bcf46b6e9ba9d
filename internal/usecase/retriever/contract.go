package retriever

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// CollectionStore persists collections of embedded chunks.
type CollectionStore interface {
	// Rebuild replaces the contents of name with entries. Readers keep
	// seeing the previous contents until the new ones are complete.
	Rebuild(ctx context.Context, name string, dim int, entries []domain.IndexedEntry) error
	Delete(ctx context.Context, name string) error
	// Search returns up to k hits ordered by ascending distance.
	Search(ctx context.Context, name string, vector []float32, k int) ([]domain.QueryResult, error)
	Ping(ctx context.Context) error
}

// Splitter chunks an input.
type Splitter interface {
	Split(in domain.Input) []domain.Chunk
}
