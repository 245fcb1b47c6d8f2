// Package cache stores ranked search results in the KV store and serves them back
// through a requester tier, a location tier and a stale read.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Default lifetimes.
const (
	DefaultRequesterTTL = 30 * time.Minute
	DefaultLocationTTL  = 60 * time.Minute
	DefaultRetention    = 24 * time.Hour
)

// Config tunes key layout and lifetimes. Zero values select the defaults.
type Config struct {
	KeyPrefix    string
	RequesterTTL time.Duration
	LocationTTL  time.Duration
	Retention    time.Duration
}

// Repo is the cache manager.
type Repo struct {
	store   store
	cfg     Config
	clock   clock.Clock
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New creates a cache repository.
// lookups is a counter vec with labels "tier" and "result", passed explicitly; may be nil.
func New(s store, cfg Config, clk clock.Clock, lookups *prometheus.CounterVec, l *zap.Logger) *Repo {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.DefaultKeyPrefix
	}
	if cfg.RequesterTTL <= 0 {
		cfg.RequesterTTL = DefaultRequesterTTL
	}
	if cfg.LocationTTL <= 0 {
		cfg.LocationTTL = DefaultLocationTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Repo{store: s, cfg: cfg, clock: clk, lookups: lookups, logger: logger.OrNop(l)}
}

// Get returns the freshest entry matching key: first among the requester's own
// entries younger than RequesterTTL, then among any requester's entries for the
// same location younger than LocationTTL. Store failures are logged and read as a miss.
func (r *Repo) Get(ctx context.Context, key domcache.Key) (domcache.Hit, bool) {
	key = key.Normalized()
	now := r.clock.Now()

	if key.RequesterID != "" {
		if e, ok := r.freshest(ctx, r.requesterPattern(key.RequesterID), domcache.TierRequester, func(e *domcache.Entry) bool {
			return matchRequester(e, key) && e.Age(now) < r.cfg.RequesterTTL
		}); ok {
			return domcache.Hit{Entry: e, Tier: domcache.TierRequester}, true
		}
	}

	if key.Location != "" {
		if e, ok := r.freshest(ctx, r.allPattern(), domcache.TierLocation, func(e *domcache.Entry) bool {
			return matchLocation(e, key) && e.Age(now) < r.cfg.LocationTTL
		}); ok {
			return domcache.Hit{Entry: e, Tier: domcache.TierLocation}, true
		}
	}

	return domcache.Hit{}, false
}

// GetStale applies the Get matching without the tier TTLs; only retention bounds it.
func (r *Repo) GetStale(ctx context.Context, key domcache.Key) (domcache.Hit, bool) {
	key = key.Normalized()
	now := r.clock.Now()

	if key.RequesterID != "" {
		if e, ok := r.freshest(ctx, r.requesterPattern(key.RequesterID), domcache.TierStale, func(e *domcache.Entry) bool {
			return matchRequester(e, key) && !e.Expired(now)
		}); ok {
			return domcache.Hit{Entry: e, Tier: domcache.TierStale}, true
		}
	}
	if key.Location != "" {
		if e, ok := r.freshest(ctx, r.allPattern(), domcache.TierStale, func(e *domcache.Entry) bool {
			return matchLocation(e, key) && !e.Expired(now)
		}); ok {
			return domcache.Hit{Entry: e, Tier: domcache.TierStale}, true
		}
	}
	return domcache.Hit{}, false
}

// Put stores records under key in the requester tier, replacing an entry with the
// same key. An empty requester id is a no-op.
func (r *Repo) Put(ctx context.Context, key domcache.Key, records []record.Ranked, meta aggregation.Metadata) error {
	key = key.Normalized()
	if key.RequesterID == "" {
		r.logger.Warn("Cache write skipped: empty requester id", zap.String("query", key.Query))
		return nil
	}

	now := r.clock.Now()
	e := domcache.Entry{
		Key:       key,
		Records:   records,
		Metadata:  meta,
		CreatedAt: now,
		ExpiresAt: now.Add(r.cfg.Retention),
	}
	data, err := encodeEntry(&e)
	if err != nil {
		return err
	}

	k := r.entryKey(key)
	if err := r.store.SetWithTTL(ctx, k, data, r.cfg.Retention); err != nil {
		return fmt.Errorf("cache SET %s: %w", k, err)
	}
	return nil
}

// Sweep deletes entries past their retention and entries that no longer decode.
func (r *Repo) Sweep(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.allPattern())
	if err != nil {
		return 0, fmt.Errorf("cache SCAN: %w", err)
	}

	now := r.clock.Now()
	var doomed []string
	r.each(ctx, keys, func(k string, data []byte) {
		e, err := decodeEntry(data)
		if err != nil || e.Expired(now) {
			doomed = append(doomed, k)
		}
	})

	if len(doomed) == 0 {
		return 0, nil
	}
	if err := r.store.Del(ctx, doomed...); err != nil {
		return 0, fmt.Errorf("cache DEL: %w", err)
	}
	r.logger.Info("Cache sweep", zap.Int("scanned", len(keys)), zap.Int("deleted", len(doomed)))
	return len(doomed), nil
}

// Purge deletes every entry of a requester.
func (r *Repo) Purge(ctx context.Context, requesterID string) (int, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return 0, nil
	}
	keys, err := r.store.Scan(ctx, r.requesterPattern(requesterID))
	if err != nil {
		return 0, fmt.Errorf("cache SCAN: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("cache DEL: %w", err)
	}
	return len(keys), nil
}

// freshest loads every entry under pattern and returns the newest one accepted by match.
func (r *Repo) freshest(
	ctx context.Context, pattern string, tier domcache.Tier, match func(*domcache.Entry) bool,
) (domcache.Entry, bool) {
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		r.count(tier, "error")
		r.logger.Warn("Cache read failed", zap.String("tier", string(tier)), zap.Error(err))
		return domcache.Entry{}, false
	}

	var (
		best  domcache.Entry
		found bool
	)
	r.each(ctx, keys, func(k string, data []byte) {
		e, err := decodeEntry(data)
		if err != nil {
			r.logger.Debug("Skipping undecodable cache entry", zap.String("key", k), zap.Error(err))
			return
		}
		if match(&e) && (!found || e.CreatedAt.After(best.CreatedAt)) {
			best, found = e, true
		}
	})

	if found {
		r.count(tier, "hit")
	} else {
		r.count(tier, "miss")
	}
	return best, found
}

// readBatch caps the keys fetched per MGET round trip.
const readBatch = 100

// each reads keys in batches and calls fn for every value still present. A failed
// batch is logged and skipped; keys deleted since the scan are skipped silently.
func (r *Repo) each(ctx context.Context, keys []string, fn func(key string, data []byte)) {
	for start := 0; start < len(keys); start += readBatch {
		batch := keys[start:min(start+readBatch, len(keys))]
		vals, err := r.store.MGet(ctx, batch...)
		if err != nil {
			r.logger.Warn("Cache batch read failed", zap.Int("keys", len(batch)), zap.Error(err))
			continue
		}
		for i, data := range vals {
			if data != nil {
				fn(batch[i], data)
			}
		}
	}
}

func (r *Repo) count(tier domcache.Tier, result string) {
	if r.lookups != nil {
		r.lookups.WithLabelValues(string(tier), result).Inc()
	}
}

// matchRequester: same requester, cached query contains the requested one, and the
// optional location and remote constraints agree.
func matchRequester(e *domcache.Entry, k domcache.Key) bool {
	if e.Key.RequesterID != k.RequesterID || !strings.Contains(e.Key.Query, k.Query) {
		return false
	}
	if k.Location != "" && !strings.Contains(e.Key.Location, k.Location) {
		return false
	}
	if k.Remote != nil && (e.Key.Remote == nil || *e.Key.Remote != *k.Remote) {
		return false
	}
	return true
}

// matchLocation: any requester, cached location contains the requested one and the
// cached query contains the requested query.
func matchLocation(e *domcache.Entry, k domcache.Key) bool {
	return k.Location != "" &&
		strings.Contains(e.Key.Location, k.Location) &&
		strings.Contains(e.Key.Query, k.Query)
}

func (r *Repo) allPattern() string {
	return r.cfg.KeyPrefix + "cache:*"
}

func (r *Repo) requesterPattern(requesterID string) string {
	return r.cfg.KeyPrefix + "cache:" + shortHash(requesterID) + ":*"
}

func (r *Repo) entryKey(k domcache.Key) string {
	remote := "any"
	if k.Remote != nil {
		remote = strconv.FormatBool(*k.Remote)
	}
	return r.cfg.KeyPrefix + "cache:" + shortHash(k.RequesterID) + ":" +
		shortHash(k.Query+"|"+k.Location+"|"+remote)
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}
