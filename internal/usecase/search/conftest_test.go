package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/searchrun"
	"github.com/kailas-cloud/jobfed/internal/usecase/dedup"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	"github.com/kailas-cloud/jobfed/internal/usecase/rank"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// mockFederator serves records per source; sources listed in failing report an error.
type mockFederator struct {
	mu        sync.Mutex
	bySource  map[string][]record.Raw
	failing   map[string]bool
	calls     [][]string
	paginated int
	panicOn   string
}

func (m *mockFederator) QueryMany(_ context.Context, ids []string, _ query.Spec) federation.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ids)

	res := federation.Result{Sources: make(map[string]aggregation.SourceResult)}
	for _, id := range ids {
		if id == m.panicOn {
			panic("federation exploded")
		}
		if m.failing[id] {
			res.Sources[id] = aggregation.SourceResult{Error: "upstream 503"}
			continue
		}
		recs := m.bySource[id]
		res.Records = append(res.Records, recs...)
		res.Sources[id] = aggregation.SourceResult{Success: true, Count: len(recs), Cost: 0.1, Pages: 1}
		res.TotalCost += 0.1
	}
	return res
}

func (m *mockFederator) QueryPaginated(ctx context.Context, id string, q query.Spec, _ int) federation.Result {
	m.mu.Lock()
	m.paginated++
	m.mu.Unlock()
	return m.QueryMany(ctx, []string{id}, q)
}

func (m *mockFederator) queried(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		for _, c := range call {
			if c == id {
				return true
			}
		}
	}
	return false
}

// staticSelector always returns the same ids.
type staticSelector []string

func (s staticSelector) Select(*profile.Weights, selector.Preferences) []string { return s }

// fakeCache is an in-memory Cache with programmable hits.
type fakeCache struct {
	mu      sync.Mutex
	hit     *domcache.Hit
	stale   *domcache.Hit
	puts    []domcache.Key
	putRecs [][]record.Ranked
	purged  []string
	putErr  error
}

func (c *fakeCache) Get(context.Context, domcache.Key) (domcache.Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hit == nil {
		return domcache.Hit{}, false
	}
	return *c.hit, true
}

func (c *fakeCache) GetStale(context.Context, domcache.Key) (domcache.Hit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale == nil {
		return domcache.Hit{}, false
	}
	return *c.stale, true
}

func (c *fakeCache) Put(_ context.Context, k domcache.Key, recs []record.Ranked, _ aggregation.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, k)
	c.putRecs = append(c.putRecs, recs)
	return c.putErr
}

func (c *fakeCache) Purge(_ context.Context, requesterID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purged = append(c.purged, requesterID)
	return 1, nil
}

// mockLastResort returns fixed records.
type mockLastResort struct {
	records []record.Raw
	err     error
	calls   int
}

func (m *mockLastResort) Generate(context.Context, query.Spec, *profile.Weights) ([]record.Raw, error) {
	m.calls++
	return m.records, m.err
}

// mockRecorder captures search log writes.
type mockRecorder struct {
	mu   sync.Mutex
	runs []searchrun.Run
}

func (m *mockRecorder) Record(_ context.Context, run searchrun.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
}

// mockProgressive emits the given waves then a terminal event.
type mockProgressive struct {
	waves []progressive.Progress
	final progressive.Progress
}

func (m *mockProgressive) Run(
	_ context.Context, _ progressive.Request, onProgress func(progressive.Progress),
) progressive.Progress {
	for _, w := range m.waves {
		onProgress(w)
	}
	m.final.IsComplete = true
	onProgress(m.final)
	return m.final
}

func jobs(src string, n int) []record.Raw {
	out := make([]record.Raw, n)
	for i := range out {
		out[i] = record.Raw{
			Title:   fmt.Sprintf("%s engineer %d", src, i),
			Company: "Acme",
			URL:     fmt.Sprintf("https://%s.example.com/%d", src, i),
			Source:  src,
		}
	}
	return out
}

func rankedJobs(src string, n int) []record.Ranked {
	return record.Unranked(dedup.New(0, nil).Dedupe(jobs(src, n)))
}

const fallbackID = "fallback"

func newService(fed *mockFederator, c *fakeCache, opts Options) *Service {
	return New(fed, staticSelector{"a", "b"}, dedup.New(0, nil), rank.New(), c,
		Config{MinResults: 10, FallbackSource: fallbackID}, opts)
}

func testRequest() Request {
	return Request{
		RequesterID: "u1",
		Query:       query.Spec{Keywords: []string{"go"}, Location: "Berlin", Page: 1, Limit: 50},
	}
}
