package budget

import (
	"context"
	"time"

	"github.com/kailas-cloud/jobfed/internal/domain/usage"
)

// Store persists spend counters in micro-units, one per UTC day and month.
type Store interface {
	Add(ctx context.Context, period usage.Period, at time.Time, micro int64) error
	Used(ctx context.Context, period usage.Period, at time.Time) (int64, error)
}
