// Package usage reports source spend per period.
package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/jobfed/internal/clock"
	domusage "github.com/kailas-cloud/jobfed/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br    BudgetReader
	clock clock.Clock
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{br: br, clock: clk}
}

// Report builds a spend report for the given period. Periods are UTC calendar days
// and months, matching the budget counters.
func (s *Service) Report(_ context.Context, period domusage.Period) domusage.Report {
	now := s.clock.Now().UTC()
	r := domusage.Report{Period: period, Remaining: -1}

	switch period {
	case domusage.PeriodMonth:
		r.PeriodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.AddDate(0, 1, 0)
		if s.br != nil {
			r.Limit, r.Used, r.Remaining = s.br.MonthlyLimit(), s.br.MonthlyUsed(), s.br.RemainingMonthly()
		}
	default:
		r.Period = domusage.PeriodDay
		r.PeriodStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.PeriodEnd = r.PeriodStart.Add(24 * time.Hour)
		if s.br != nil {
			r.Limit, r.Used, r.Remaining = s.br.DailyLimit(), s.br.DailyUsed(), s.br.RemainingDaily()
		}
	}

	r.Exhausted = r.Limit > 0 && r.Remaining <= 0
	return r
}
