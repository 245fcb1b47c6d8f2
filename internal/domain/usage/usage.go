// Package usage describes spend reports for paid sources.
package usage

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/jobfed/internal/domain"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "day" and "month"; empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", domain.ErrInvalidQuery, s)
	}
}

// Report is the spend of one period. Limit 0 and Remaining -1 mean unlimited.
type Report struct {
	Period      Period    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Limit       float64   `json:"limit"`
	Used        float64   `json:"used"`
	Remaining   float64   `json:"remaining"`
	Exhausted   bool      `json:"exhausted"`
}

// Unlimited reports whether the period has no cap.
func (r Report) Unlimited() bool { return r.Limit == 0 }
