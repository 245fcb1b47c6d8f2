package federation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
)

// pageSource serves a fixed list of pages and records every requested page number.
type pageSource struct {
	mu     sync.Mutex
	pages  [][]record.Raw
	errAt  int // 1-based page that fails, 0 = never
	called []int
}

func (p *pageSource) Fetch(_ context.Context, q query.Spec) ([]record.Raw, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.called = append(p.called, q.Page)
	if p.errAt == q.Page {
		return nil, errUpstream
	}
	if q.Page-1 >= len(p.pages) {
		return nil, nil
	}
	return p.pages[q.Page-1], nil
}

type mockBudget struct {
	mu    sync.Mutex
	err   error
	spent float64
}

func (m *mockBudget) Spend(_ context.Context, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.spent += cost
	return nil
}

func job(title, company string) record.Raw {
	return record.Raw{Title: title, Company: company}
}

func testQuery(t *testing.T) query.Spec {
	t.Helper()
	q, err := query.New([]string{"golang"}, "Berlin", false, nil, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func newTestClient(t *testing.T, reg *source.Registry, opts Options) (*Client, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	opts.Clock = clk
	return New(reg, opts), clk
}

func register(t *testing.T, reg *source.Registry, d source.Descriptor, f source.Fetcher) {
	t.Helper()
	if err := reg.Register(d, f); err != nil {
		t.Fatal(err)
	}
}

// cancellingClock cancels the search when a page delay starts and never fires,
// so only ctx can end the wait.
type cancellingClock struct {
	clock.Clock
	cancel context.CancelFunc
}

func (c cancellingClock) After(time.Duration) <-chan time.Time {
	c.cancel()
	return nil
}
