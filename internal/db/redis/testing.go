package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps an existing rueidis client, typically a mock.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}

// NewValkeyStoreForTest is NewStoreForTest with the valkey-search dialect.
func NewValkeyStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c, valkey: true}
}
