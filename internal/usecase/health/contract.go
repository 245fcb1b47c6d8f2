package health

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/source"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SourceCatalog lists registered sources.
type SourceCatalog interface {
	Descriptors() []source.Descriptor
}

// BudgetReader reports the spend left in the current periods (-1 when unlimited).
type BudgetReader interface {
	RemainingDaily() float64
	RemainingMonthly() float64
}
