package chi

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/source"
	"github.com/kailas-cloud/jobfed/internal/domain/usage"
	healthuc "github.com/kailas-cloud/jobfed/internal/usecase/health"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	searchuc "github.com/kailas-cloud/jobfed/internal/usecase/search"
)

// Searcher runs searches.
type Searcher interface {
	Search(ctx context.Context, req searchuc.Request) searchuc.Result
	SearchProgressive(ctx context.Context, req searchuc.Request, onProgress func(progressive.Progress)) searchuc.Result
}

// CacheAdmin maintains the result cache.
type CacheAdmin interface {
	Purge(ctx context.Context, requesterID string) (int, error)
	Sweep(ctx context.Context) (int, error)
}

// SourceAdmin lists and toggles registered sources.
type SourceAdmin interface {
	Descriptors() []source.Descriptor
	SetEnabled(id string, enabled bool) error
}

// UsageReporter reports source spend.
type UsageReporter interface {
	Report(ctx context.Context, period usage.Period) usage.Report
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
