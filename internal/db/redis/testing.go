package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps an existing client (a rueidis mock in tests).
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
