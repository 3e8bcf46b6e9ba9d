package redis

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/db"
)

// CreateIndex issues FT.CREATE for def. An existing index yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := def.Args()
	if err != nil {
		return err
	}
	err = s.do(ctx, s.b().Arbitrary("FT.CREATE").Args(args...).Build()).Error()
	if isRedisErr(err, "index already exists") {
		return db.ErrIndexExists
	}
	return db.Wrap(db.OpCreateIndex, err)
}

// DropIndex removes an FT index and leaves its hashes in place.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	err := s.do(ctx, s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()).Error()
	if isRedisErr(err, "unknown index name") || isRedisErr(err, "not found") {
		return db.ErrIndexNotFound
	}
	return db.Wrap(db.OpDropIndex, err)
}
