package db

import (
	"context"
	"time"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ListOptions bounds a record listing.
type ListOptions struct {
	// Exclude drops records by id before Offset and Limit apply.
	Exclude []string
	Offset  int
	// Limit of zero means no limit.
	Limit int
}
