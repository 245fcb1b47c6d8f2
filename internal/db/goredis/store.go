// Package goredis implements db.Store on top of go-redis for deployments that
// configure the cache with a single redis:// URL.
package goredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kailas-cloud/jobfed/internal/db"
)

var _ db.Store = (*Store)(nil)

const scanBatch = 100

// Store implements db.Store via go-redis.
type Store struct {
	client *redis.Client
}

// NewStore parses redisURL and builds a client. Connectivity is checked by WaitForReady.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(c *redis.Client) *Store {
	return &Store{client: c}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	_ = s.client.Close()
}

// WaitForReady pings until the server answers or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return db.PollReady(ctx, s, timeout, db.ReadyPollInterval)
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrap(db.OpGet, err)
	}
	return data, nil
}

// MGet reads keys in one MGET; missing keys yield nil.
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(db.OpMGet, err)
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrap(db.OpSet, s.client.Set(ctx, key, value, ttl).Err())
}

// Del deletes keys. Missing keys are not an error.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(db.OpDel, s.client.Del(ctx, keys...).Err())
}

// Scan iterates keys matching a pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, wrap(db.OpScan, err)
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// IncrBy atomically increments a key by the given amount.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	return wrap(db.OpIncrBy, s.client.IncrBy(ctx, key, val).Err())
}

// Expire sets TTL on a key. nx=true only sets it when the key has no expiry yet.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if nx {
		return wrap(db.OpExpire, s.client.ExpireNX(ctx, key, ttl).Err())
	}
	return wrap(db.OpExpire, s.client.Expire(ctx, key, ttl).Err())
}

// wrap maps redis.Nil to db.ErrKeyNotFound and annotates everything else with op.
func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return db.ErrKeyNotFound
	default:
		return &db.Error{Op: op, Err: err}
	}
}
