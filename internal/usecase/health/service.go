// Package health reports whether the pipeline can serve searches.
package health

import (
	"context"
	"fmt"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates searches still run, but without the cache, the search log
	// or paid sources.
	Degraded Status = "degraded"
	// Unhealthy indicates no source is enabled, so no search can produce records.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check is the outcome of one probe.
type Check struct {
	Status CheckResult `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// Report aggregates health check results.
type Report struct {
	Status Status           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

// Check names.
const (
	CheckCache     = "cache"
	CheckSources   = "sources"
	CheckSearchLog = "search_log"
	CheckBudget    = "budget"
)

// DefaultProbeTimeout bounds each store ping.
const DefaultProbeTimeout = 2 * time.Second

// Options holds the optional probes.
type Options struct {
	SearchLog    Pinger
	Budget       BudgetReader
	ProbeTimeout time.Duration
}

// Service coordinates health checks.
type Service struct {
	cache   Pinger
	sources SourceCatalog
	opts    Options
}

// New creates a Service. Nil option fields skip their probe.
func New(cache Pinger, sources SourceCatalog, opts Options) *Service {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Service{cache: cache, sources: sources, opts: opts}
}

// Check runs every probe. A missing source pool is fatal; anything else degrades.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]Check{
		CheckCache:   s.ping(ctx, s.cache),
		CheckSources: s.checkSources(),
	}
	if s.opts.SearchLog != nil {
		checks[CheckSearchLog] = s.ping(ctx, s.opts.SearchLog)
	}
	if s.opts.Budget != nil {
		checks[CheckBudget] = checkBudget(s.opts.Budget)
	}

	status := Healthy
	for _, c := range checks {
		if c.Status == CheckError {
			status = Degraded
			break
		}
	}
	if checks[CheckSources].Status == CheckError {
		status = Unhealthy
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) ping(ctx context.Context, p Pinger) Check {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		// the error text can carry addresses; keep it out of a public endpoint
		return Check{Status: CheckError, Detail: "unreachable"}
	}
	return Check{Status: CheckOK}
}

func (s *Service) checkSources() Check {
	all := s.sources.Descriptors()
	enabled := 0
	for _, d := range all {
		if d.Enabled {
			enabled++
		}
	}
	c := Check{Status: CheckOK, Detail: fmt.Sprintf("%d/%d enabled", enabled, len(all))}
	if enabled == 0 {
		c.Status = CheckError
	}
	return c
}

func checkBudget(b BudgetReader) Check {
	switch {
	case b.RemainingDaily() == 0:
		return Check{Status: CheckError, Detail: "daily budget exhausted"}
	case b.RemainingMonthly() == 0:
		return Check{Status: CheckError, Detail: "monthly budget exhausted"}
	default:
		return Check{Status: CheckOK}
	}
}
