// Package budget keeps per-period source spend counters in the cache store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/jobfed/internal/db"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/usage"
)

// kv is the consumer interface over db.KVStore (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Counter lifetimes: a day counter outlives its day, a month counter its month.
const (
	DefaultDayTTL   = 48 * time.Hour
	DefaultMonthTTL = 62 * 24 * time.Hour
)

// Config controls key layout and expiry.
type Config struct {
	KeyPrefix string
	DayTTL    time.Duration
	MonthTTL  time.Duration
}

// Counters stores spend in micro-units, one key per UTC day and per UTC month:
// {prefix}budget:day:2026-03-31 and {prefix}budget:month:2026-03.
type Counters struct {
	kv  kv
	cfg Config
}

// New creates the counter store. Zero config fields fall back to defaults.
func New(s kv, cfg Config) *Counters {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = domain.DefaultKeyPrefix
	}
	if cfg.DayTTL <= 0 {
		cfg.DayTTL = DefaultDayTTL
	}
	if cfg.MonthTTL <= 0 {
		cfg.MonthTTL = DefaultMonthTTL
	}
	return &Counters{kv: s, cfg: cfg}
}

// Key returns the counter key of the period containing at.
func (c *Counters) Key(period usage.Period, at time.Time) string {
	at = at.UTC()
	if period == usage.PeriodMonth {
		return c.cfg.KeyPrefix + "budget:month:" + at.Format("2006-01")
	}
	return c.cfg.KeyPrefix + "budget:day:" + at.Format("2006-01-02")
}

func (c *Counters) ttl(period usage.Period) time.Duration {
	if period == usage.PeriodMonth {
		return c.cfg.MonthTTL
	}
	return c.cfg.DayTTL
}

// Add increments the period counter. The first write of a period fixes its expiry.
func (c *Counters) Add(ctx context.Context, period usage.Period, at time.Time, micro int64) error {
	key := c.Key(period, at)
	if err := c.kv.IncrBy(ctx, key, micro); err != nil {
		return fmt.Errorf("add spend %s: %w", key, err)
	}
	if err := c.kv.Expire(ctx, key, c.ttl(period), true); err != nil {
		return fmt.Errorf("expire spend %s: %w", key, err)
	}
	return nil
}

// Used returns the period counter, 0 when nothing was spent yet.
func (c *Counters) Used(ctx context.Context, period usage.Period, at time.Time) (int64, error) {
	key := c.Key(period, at)
	data, err := c.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read spend %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read spend %s: %w", key, err)
	}
	return val, nil
}
