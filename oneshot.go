package vecrag

import (
	"context"
	"slices"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Index connects to conn, rebuilds the collection from in and disconnects.
// opts configure the embedder, chunking and collection as for New; conn
// always wins over a WithConnection among them.
func Index(ctx context.Context, conn Connection, in Input, opts ...Option) error {
	opts = oneShot(conn, opts)
	c, err := New(ctx, opts...)
	if err != nil {
		return &IndexError{Collection: collectionOf(opts), Err: err}
	}
	defer c.Close()

	return c.Index(ctx, in)
}

// Query connects to conn, runs one query against the collection and disconnects.
func Query(ctx context.Context, conn Connection, text string, threshold float64, opts ...Option) ([]string, error) {
	opts = oneShot(conn, opts)
	c, err := New(ctx, opts...)
	if err != nil {
		return nil, &QueryError{Collection: collectionOf(opts), Err: err}
	}
	defer c.Close()

	return c.Query(ctx, text, threshold)
}

func oneShot(conn Connection, opts []Option) []Option {
	return append(slices.Clip(opts), WithConnection(conn))
}

func collectionOf(opts []Option) string {
	cfg := &clientConfig{collection: domain.DefaultCollectionName}
	for _, o := range opts {
		o.apply(cfg)
	}
	return cfg.collection
}
