// Package federation fans one query out to many sources and collects
// normalized records plus per-source outcome metadata.
package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// DefaultPageDelay separates sequential page requests to one source.
const DefaultPageDelay = time.Second

// Metrics are the optional collectors the client reports into.
type Metrics struct {
	Requests *prometheus.CounterVec   // labels: source, status
	Duration *prometheus.HistogramVec // labels: source
	Records  *prometheus.CounterVec   // labels: source
	Cost     *prometheus.CounterVec   // labels: source
}

// Options configure a Client. Zero values are usable.
type Options struct {
	PageDelay      time.Duration
	MaxConcurrency int // 0 = one goroutine per source
	Clock          clock.Clock
	Budget         Budget
	Metrics        Metrics
	Logger         *zap.Logger
}

// Result is the outcome of one federation round.
type Result struct {
	Records   []record.Raw
	Sources   map[string]aggregation.SourceResult
	TotalCost float64
}

// Client queries sources concurrently. A failing source never affects its siblings.
type Client struct {
	reg       Registry
	pageDelay time.Duration
	limit     int
	clock     clock.Clock
	budget    Budget
	metrics   Metrics
	logger    *zap.Logger
}

// New creates a federation client.
func New(reg Registry, opts Options) *Client {
	if opts.PageDelay <= 0 {
		opts.PageDelay = DefaultPageDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Client{
		reg:       reg,
		pageDelay: opts.PageDelay,
		limit:     opts.MaxConcurrency,
		clock:     opts.Clock,
		budget:    opts.Budget,
		metrics:   opts.Metrics,
		logger:    logger.OrNop(opts.Logger),
	}
}

// QueryMany queries every source in ids concurrently and waits for all of them.
// Records are concatenated in ids order; duplicate ids are queried once.
func (c *Client) QueryMany(ctx context.Context, ids []string, q query.Spec) Result {
	ids = uniqueIDs(ids)
	outcomes := make([]outcome, len(ids))

	var g errgroup.Group
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = c.querySource(ctx, id, q)
			return nil // settle all: errors live in the outcome
		})
	}
	_ = g.Wait()

	return collect(ids, outcomes)
}

// outcome is one source's contribution to a round.
type outcome struct {
	records []record.Raw
	result  aggregation.SourceResult
}

func (c *Client) querySource(ctx context.Context, id string, q query.Spec) outcome {
	desc, fetcher, ok := c.reg.Lookup(id)
	if !ok {
		c.observe(id, "skipped", 0, 0, 0)
		return outcome{result: aggregation.SourceResult{Error: domain.ErrSourceNotFound.Error()}}
	}
	if !desc.Enabled {
		c.observe(id, "skipped", 0, 0, 0)
		return outcome{result: aggregation.SourceResult{Error: domain.ErrSourceDisabled.Error()}}
	}
	if err := c.admit(ctx, desc); err != nil {
		c.observe(id, "skipped", 0, 0, 0)
		return outcome{result: aggregation.SourceResult{Error: err.Error()}}
	}

	start := c.clock.Now()
	records, err := c.call(ctx, desc, fetcher, q)
	elapsed := c.clock.Now().Sub(start)

	res := aggregation.SourceResult{Duration: elapsed, Cost: desc.CostPerCall, Pages: 1}
	if err != nil {
		res.Error = err.Error()
		c.observe(id, "error", elapsed, 0, desc.CostPerCall)
		logger.FromContextOr(ctx, c.logger).Warn("Source query failed",
			logger.Source(id),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return outcome{result: res}
	}

	records = normalize(id, records)
	res.Success = true
	res.Count = len(records)
	c.observe(id, "success", elapsed, len(records), desc.CostPerCall)
	logger.FromContextOr(ctx, c.logger).Debug("Source query succeeded",
		logger.Source(id),
		zap.Int("records", len(records)),
		zap.Duration("duration", elapsed),
	)
	return outcome{records: records, result: res}
}

// admit consults the budget for paid sources.
func (c *Client) admit(ctx context.Context, desc source.Descriptor) error {
	if c.budget == nil || desc.CostPerCall <= 0 {
		return nil
	}
	if err := c.budget.Spend(ctx, desc.CostPerCall); err != nil {
		return fmt.Errorf("source %s: %w", desc.ID, err)
	}
	return nil
}

// call runs one adapter fetch under the source timeout. An adapter that ignores
// the deadline is abandoned; its late result is discarded.
func (c *Client) call(
	ctx context.Context, desc source.Descriptor, f source.Fetcher, q query.Spec,
) ([]record.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, desc.CallTimeout())
	defer cancel()

	type reply struct {
		records []record.Raw
		err     error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", domain.ErrSourcePanic, r)}
			}
		}()
		records, err := f.Fetch(ctx, q)
		done <- reply{records: records, err: err}
	}()

	select {
	case r := <-done:
		return r.records, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout after %s: %w", desc.CallTimeout(), ctx.Err())
		}
		return nil, fmt.Errorf("cancelled: %w", ctx.Err())
	}
}

func (c *Client) observe(id, status string, d time.Duration, n int, cost float64) {
	m := c.metrics
	if m.Requests != nil {
		m.Requests.WithLabelValues(id, status).Inc()
	}
	if status == "skipped" {
		return
	}
	if m.Duration != nil {
		m.Duration.WithLabelValues(id).Observe(d.Seconds())
	}
	if m.Records != nil && n > 0 {
		m.Records.WithLabelValues(id).Add(float64(n))
	}
	if m.Cost != nil && cost > 0 {
		m.Cost.WithLabelValues(id).Add(cost)
	}
}

// normalize trims records, defaults their source and drops those missing title or company.
func normalize(sourceID string, in []record.Raw) []record.Raw {
	out := make([]record.Raw, 0, len(in))
	for _, r := range in {
		r = r.Normalize(sourceID)
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

func collect(ids []string, outcomes []outcome) Result {
	res := Result{Sources: make(map[string]aggregation.SourceResult, len(ids))}
	for i, id := range ids {
		o := outcomes[i]
		res.Records = append(res.Records, o.records...)
		res.Sources[id] = o.result
		res.TotalCost += o.result.Cost
	}
	return res
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
