// Package db defines the key-value store contract behind the result cache and
// the spend counters, with rueidis, go-redis and in-memory implementations.
package db

import (
	"context"
	"time"
)

// Store is a connected key-value backend with lifecycle hooks.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore is the subset of Redis the pipeline relies on. Cache documents are
// written with a TTL, listed by glob pattern and read in batches; spend counters
// use INCRBY with a first-write expiry.
type KVStore interface {
	// Get returns ErrKeyNotFound (possibly wrapped) for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one value per key, in order; missing keys yield nil.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
