package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
)

func TestPutGet_RequesterTier(t *testing.T) {
	r, clk, _, lookups := newTestRepo(t)
	ctx := context.Background()

	key := domcache.Key{RequesterID: "u1", Query: "Senior Go Developer", Location: "Berlin"}
	if err := r.Put(ctx, key, ranked("a", "b"), aggregation.New()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clk.Advance(10 * time.Minute)
	hit, ok := r.Get(ctx, domcache.Key{RequesterID: "u1", Query: "go developer"})
	if !ok {
		t.Fatal("expected requester-tier hit for a query contained in the cached one")
	}
	if hit.Tier != domcache.TierRequester || len(hit.Entry.Records) != 2 {
		t.Errorf("unexpected hit %+v", hit)
	}
	if hit.Entry.Records[0].Title != "a" {
		t.Errorf("expected record order kept, got %q", hit.Entry.Records[0].Title)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("requester", "hit")); got != 1 {
		t.Errorf("expected 1 requester hit, got %v", got)
	}
}

func TestGet_RequesterTTL(t *testing.T) {
	r, clk, _, _ := newTestRepo(t)
	ctx := context.Background()

	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go"}, ranked("a"), aggregation.New())
	clk.Advance(31 * time.Minute)

	if _, ok := r.Get(ctx, domcache.Key{RequesterID: "u1", Query: "go"}); ok {
		t.Error("entry older than the requester TTL must miss")
	}
}

func TestGet_RequesterConstraints(t *testing.T) {
	r, _, _, _ := newTestRepo(t)
	ctx := context.Background()
	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go", Location: "Berlin", Remote: boolPtr(true)}, ranked("a"), aggregation.New())

	tests := []struct {
		name string
		key  domcache.Key
		want bool
	}{
		{"same", domcache.Key{RequesterID: "u1", Query: "go", Location: "berlin", Remote: boolPtr(true)}, true},
		{"no optional filters", domcache.Key{RequesterID: "u1", Query: "go"}, true},
		{"other requester", domcache.Key{RequesterID: "u2", Query: "go"}, false},
		{"query not contained", domcache.Key{RequesterID: "u1", Query: "rust"}, false},
		{"other location", domcache.Key{RequesterID: "u1", Query: "go", Location: "paris"}, false},
		{"remote mismatch", domcache.Key{RequesterID: "u1", Query: "go", Remote: boolPtr(false)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := r.Get(ctx, tc.key); ok != tc.want {
				t.Errorf("Get() hit = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestGet_LocationTier(t *testing.T) {
	r, clk, _, _ := newTestRepo(t)
	ctx := context.Background()

	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go developer", Location: "Berlin, Germany"}, ranked("a"), aggregation.New())
	clk.Advance(45 * time.Minute)

	hit, ok := r.Get(ctx, domcache.Key{RequesterID: "u2", Query: "developer", Location: "berlin"})
	if !ok || hit.Tier != domcache.TierLocation {
		t.Fatalf("expected location-tier hit, got %+v, %v", hit, ok)
	}

	clk.Advance(16 * time.Minute)
	if _, ok := r.Get(ctx, domcache.Key{RequesterID: "u2", Query: "developer", Location: "berlin"}); ok {
		t.Error("entry older than the location TTL must miss")
	}
}

func TestGet_LocationTierNeedsLocation(t *testing.T) {
	r, _, _, _ := newTestRepo(t)
	ctx := context.Background()
	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go"}, ranked("a"), aggregation.New())

	if _, ok := r.Get(ctx, domcache.Key{RequesterID: "u2", Query: "go"}); ok {
		t.Error("another requester without a location must not hit")
	}
}

func TestGet_FreshestWins(t *testing.T) {
	r, clk, _, _ := newTestRepo(t)
	ctx := context.Background()

	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go developer"}, ranked("old"), aggregation.New())
	clk.Advance(5 * time.Minute)
	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "senior go developer"}, ranked("new"), aggregation.New())

	hit, ok := r.Get(ctx, domcache.Key{RequesterID: "u1", Query: "go developer"})
	if !ok || hit.Entry.Records[0].Title != "new" {
		t.Errorf("expected freshest entry, got %+v", hit)
	}
}

func TestPut_SameKeyOverwrites(t *testing.T) {
	r, _, st, _ := newTestRepo(t)
	ctx := context.Background()
	key := domcache.Key{RequesterID: "u1", Query: "go"}

	_ = r.Put(ctx, key, ranked("first"), aggregation.New())
	_ = r.Put(ctx, domcache.Key{RequesterID: " u1", Query: "GO "}, ranked("second"), aggregation.New())

	keys, _ := st.Scan(ctx, "jobfed:cache:*")
	if len(keys) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(keys))
	}
	hit, _ := r.Get(ctx, key)
	if hit.Entry.Records[0].Title != "second" {
		t.Errorf("expected overwrite, got %q", hit.Entry.Records[0].Title)
	}
}

func TestPut_EmptyRequesterNoop(t *testing.T) {
	r, _, st, _ := newTestRepo(t)
	ctx := context.Background()

	if err := r.Put(ctx, domcache.Key{Query: "go"}, ranked("a"), aggregation.New()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if keys, _ := st.Scan(ctx, "*"); len(keys) != 0 {
		t.Errorf("expected nothing stored, got %v", keys)
	}
}

func TestPut_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	r := New(&mockStore{setFn: func(context.Context, string, []byte, time.Duration) error { return boom }}, Config{}, nil, nil, nil)

	err := r.Put(context.Background(), domcache.Key{RequesterID: "u1", Query: "go"}, ranked("a"), aggregation.New())
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestGet_StoreErrorIsMiss(t *testing.T) {
	r := New(&mockStore{scanFn: func(context.Context, string) ([]string, error) {
		return nil, errors.New("timeout")
	}}, Config{}, nil, nil, nil)

	if _, ok := r.Get(context.Background(), domcache.Key{RequesterID: "u1", Query: "go", Location: "x"}); ok {
		t.Error("store failure must read as a miss")
	}
}

func TestSweep_BatchesReadsAndSkipsFailedBatch(t *testing.T) {
	keys := make([]string, readBatch+5)
	for i := range keys {
		keys[i] = fmt.Sprintf("jobfed:cache:e:%d", i)
	}
	var (
		batches []int
		deleted []string
	)
	st := &mockStore{
		scanFn: func(context.Context, string) ([]string, error) { return keys, nil },
		mgetFn: func(_ context.Context, ks ...string) ([][]byte, error) {
			batches = append(batches, len(ks))
			if len(batches) == 1 {
				return nil, errors.New("timeout")
			}
			out := make([][]byte, len(ks))
			for i := range out {
				out[i] = []byte("{not json")
			}
			return out, nil
		},
		delFn: func(_ context.Context, ks ...string) error {
			deleted = ks
			return nil
		},
	}
	r := New(st, Config{}, nil, nil, nil)

	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(batches) != 2 || batches[0] != readBatch || batches[1] != 5 {
		t.Errorf("unexpected read batches %v", batches)
	}
	// the failed first batch is left alone, the second is undecodable and goes
	if n != 5 || len(deleted) != 5 || deleted[0] != keys[readBatch] {
		t.Errorf("expected the 5 keys of the second batch deleted, got %d %v", n, deleted)
	}
}

func TestGetStale_IgnoresTTL(t *testing.T) {
	r, clk, _, _ := newTestRepo(t)
	ctx := context.Background()
	key := domcache.Key{RequesterID: "u1", Query: "go"}

	_ = r.Put(ctx, key, ranked("a"), aggregation.New())
	clk.Advance(5 * time.Hour)

	if _, ok := r.Get(ctx, key); ok {
		t.Fatal("expected fresh read to miss")
	}
	hit, ok := r.GetStale(ctx, key)
	if !ok || hit.Tier != domcache.TierStale {
		t.Fatalf("expected stale hit, got %+v, %v", hit, ok)
	}

	clk.Advance(20 * time.Hour)
	if _, ok := r.GetStale(ctx, key); ok {
		t.Error("stale read must respect retention")
	}
}

func TestSweep(t *testing.T) {
	r, clk, st, _ := newTestRepo(t)
	ctx := context.Background()

	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "old"}, ranked("a"), aggregation.New())
	clk.Advance(23 * time.Hour)
	_ = r.Put(ctx, domcache.Key{RequesterID: "u2", Query: "new"}, ranked("b"), aggregation.New())
	_ = st.SetWithTTL(ctx, "jobfed:cache:garbage:1", []byte("{not json"), 0)
	clk.Advance(2 * time.Hour)

	deleted, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected expired and undecodable entries deleted, got %d", deleted)
	}
	if _, ok := r.GetStale(ctx, domcache.Key{RequesterID: "u2", Query: "new"}); !ok {
		t.Error("entry within retention must survive the sweep")
	}
}

func TestSweep_ScanError(t *testing.T) {
	r := New(&mockStore{scanFn: func(context.Context, string) ([]string, error) {
		return nil, errors.New("down")
	}}, Config{}, nil, nil, nil)
	if _, err := r.Sweep(context.Background()); err == nil {
		t.Error("expected scan error")
	}
}

func TestPurge(t *testing.T) {
	r, _, st, _ := newTestRepo(t)
	ctx := context.Background()

	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "go"}, ranked("a"), aggregation.New())
	_ = r.Put(ctx, domcache.Key{RequesterID: "u1", Query: "rust"}, ranked("b"), aggregation.New())
	_ = r.Put(ctx, domcache.Key{RequesterID: "u2", Query: "go"}, ranked("c"), aggregation.New())

	n, err := r.Purge(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("Purge() = %d, %v; want 2, nil", n, err)
	}
	keys, _ := st.Scan(ctx, "jobfed:cache:*")
	if len(keys) != 1 {
		t.Errorf("expected other requester kept, got %d keys", len(keys))
	}
}

func TestDecodeEntry_Rejects(t *testing.T) {
	for _, data := range []string{`nope`, `{"v":2,"entry":{}}`, `{"v":1,"entry":{"key":{"query":"x"}}}`} {
		if _, err := decodeEntry([]byte(data)); !errors.Is(err, errBadDocument) {
			t.Errorf("decodeEntry(%s): expected errBadDocument, got %v", data, err)
		}
	}
}
