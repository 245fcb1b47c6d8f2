package progressive

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
	"github.com/kailas-cloud/jobfed/internal/usecase/dedup"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/rank"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// mockFederator answers every source from a fixed table and records the calls.
type mockFederator struct {
	mu        sync.Mutex
	bySource  map[string][]record.Raw
	calls     [][]string
	paginated []string
	queryFn   func(ids []string)
}

func (m *mockFederator) QueryMany(_ context.Context, ids []string, _ query.Spec) federation.Result {
	m.mu.Lock()
	m.calls = append(m.calls, ids)
	fn := m.queryFn
	m.mu.Unlock()
	if fn != nil {
		fn(ids)
	}

	res := federation.Result{Sources: make(map[string]aggregation.SourceResult)}
	for _, id := range ids {
		recs := m.bySource[id]
		res.Records = append(res.Records, recs...)
		res.Sources[id] = aggregation.SourceResult{Success: true, Count: len(recs), Pages: 1}
	}
	return res
}

func (m *mockFederator) QueryPaginated(ctx context.Context, id string, q query.Spec, _ int) federation.Result {
	m.mu.Lock()
	m.paginated = append(m.paginated, id)
	m.mu.Unlock()
	return m.QueryMany(ctx, []string{id}, q)
}

func jobs(src string, n int) []record.Raw {
	out := make([]record.Raw, n)
	for i := range out {
		out[i] = record.Raw{
			Title:   fmt.Sprintf("%s job %d", src, i),
			Company: "Acme",
			URL:     fmt.Sprintf("https://%s.example.com/jobs/%d", src, i),
			Source:  src,
		}
	}
	return out
}

func newRegistry(t *testing.T, descs ...source.Descriptor) *source.Registry {
	t.Helper()
	reg := source.NewRegistry()
	noop := source.FetcherFunc(func(context.Context, query.Spec) ([]record.Raw, error) { return nil, nil })
	for _, d := range descs {
		d.Enabled = true
		if err := reg.Register(d, noop); err != nil {
			t.Fatalf("register %s: %v", d.ID, err)
		}
	}
	return reg
}

// standardRegistry: two fast sources (cheap first), one medium, one slow, a remote
// specialist and a fallback.
func standardRegistry(t *testing.T) *source.Registry {
	return newRegistry(t,
		source.Descriptor{ID: "fast-b", Tier: source.TierFast, CostPerCall: 0.01},
		source.Descriptor{ID: "fast-a", Tier: source.TierFast},
		source.Descriptor{ID: "medium", Tier: source.TierMedium},
		source.Descriptor{ID: "slow", Tier: source.TierSlow},
		source.Descriptor{ID: "remote-board", Tier: source.TierSlow},
		source.Descriptor{ID: "fallback", Tier: source.TierSlow, CostPerCall: 1},
	)
}

// newAggregator designates standardRegistry's "fallback" unless cfg names another.
func newAggregator(reg *source.Registry, fed Federator, cfg Config) *Aggregator {
	if cfg.FallbackSource == "" {
		cfg.FallbackSource = "fallback"
	}
	sel := selector.New(reg, selector.Rules{RemoteSpecialist: "remote-board"})
	return New(fed, dedup.New(0, nil), rank.New(), sel, reg, cfg, nil)
}

var testQuery = query.Spec{Keywords: []string{"go"}, Page: 1, Limit: 50}
