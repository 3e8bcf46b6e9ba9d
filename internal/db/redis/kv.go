package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecrag/internal/db"
)

// Get retrieves a value; a missing key yields db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, db.Wrap(db.OpGet, err)
	}
	return data, nil
}

// SetWithTTL stores a value that expires after ttl. A non-positive ttl never expires.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.b().Set().Key(key).Value(rueidis.BinaryString(value))
	if ttl > 0 {
		return db.Wrap(db.OpSet, s.do(ctx, set.Ex(ttl).Build()).Error())
	}
	return db.Wrap(db.OpSet, s.do(ctx, set.Build()).Error())
}
