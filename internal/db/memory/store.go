// Package memory is an in-process db.Store for single-node runs and tests.
// Keys are spread over FNV-hashed shards, each guarded by its own lock.
package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/db"
)

var _ db.Store = (*Store)(nil)

// DefaultShards matches the shard count used for small caches.
const DefaultShards = 8

type item struct {
	value   []byte
	expires time.Time // zero means no expiry
}

type shard struct {
	mu    sync.RWMutex
	items map[string]item
}

// Store is a sharded map with per-key TTL.
type Store struct {
	shards []*shard
	clock  clock.Clock
	stop   chan struct{}
	once   sync.Once
}

// NewStore creates a store and, when cleanup > 0, a goroutine that evicts expired keys.
func NewStore(numShards int, cleanup time.Duration, clk clock.Clock) *Store {
	if numShards <= 0 {
		numShards = DefaultShards
	}
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Store{
		shards: make([]*shard, numShards),
		clock:  clk,
		stop:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]item)}
	}
	if cleanup > 0 {
		go s.cleanupLoop(cleanup)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) live(it item, now time.Time) bool {
	return it.expires.IsZero() || now.Before(it.expires)
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Get retrieves a copy of the value stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	it, ok := sh.items[key]
	if !ok || !s.live(it, s.clock.Now()) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), it.value...), nil
}

// MGet returns copies of the live values; missing or expired keys yield nil.
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := s.Get(ctx, k)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SetWithTTL stores a value; ttl <= 0 means no expiry.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = s.clock.Now().Add(ttl)
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = it
	sh.mu.Unlock()
	return nil
}

// Del deletes keys.
func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		sh := s.shardFor(k)
		sh.mu.Lock()
		delete(sh.items, k)
		sh.mu.Unlock()
	}
	return nil
}

// Scan returns live keys matching a glob pattern (path.Match syntax, same as Redis for * and ?).
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}

	now := s.clock.Now()
	var keys []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, it := range sh.items {
			if !s.live(it, now) {
				continue
			}
			if ok, _ := path.Match(pattern, k); ok {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	return keys, nil
}

// IncrBy increments an integer counter, creating it at zero.
func (s *Store) IncrBy(_ context.Context, key string, val int64) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if !ok || !s.live(it, s.clock.Now()) {
		it = item{}
	}
	var cur int64
	if len(it.value) > 0 {
		n, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return &db.Error{Op: db.OpIncrBy, Err: db.ErrNotInteger}
		}
		cur = n
	}
	it.value = []byte(strconv.FormatInt(cur+val, 10))
	sh.items[key] = it
	return nil
}

// Expire sets a TTL. With nx=true only keys without an expiry are touched.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	if !ok {
		return nil
	}
	if nx && !it.expires.IsZero() {
		return nil
	}
	it.expires = s.clock.Now().Add(ttl)
	sh.items[key] = it
	return nil
}

// evictExpired drops expired keys from every shard.
func (s *Store) evictExpired() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, it := range sh.items {
			if !s.live(it, now) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}
