package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/db/memory"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// mockStore implements the consumer interface for failure tests.
type mockStore struct {
	mgetFn func(ctx context.Context, keys ...string) ([][]byte, error)
	setFn  func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn  func(ctx context.Context, keys ...string) error
	scanFn func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if m.mgetFn != nil {
		return m.mgetFn(ctx, keys...)
	}
	return make([][]byte, len(keys)), nil
}

func (m *mockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestRepo backs the repo with a memory store on the real clock, so the store
// never expires keys on its own and retention is judged only by the repo's fake clock.
func newTestRepo(t *testing.T) (*Repo, *clock.Fake, *memory.Store, *prometheus.CounterVec) {
	t.Helper()
	st := memory.NewStore(0, 0, nil)
	t.Cleanup(st.Close)
	clk := clock.NewFake(epoch)
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_lookups_total"}, []string{"tier", "result"})
	return New(st, Config{}, clk, lookups, nil), clk, st, lookups
}

func ranked(titles ...string) []record.Ranked {
	out := make([]record.Ranked, len(titles))
	for i, t := range titles {
		out[i] = record.Ranked{Unique: record.Unique{Raw: record.Raw{Title: t, Company: "Acme", Source: "s"}}, Score: float64(len(titles) - i)}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
