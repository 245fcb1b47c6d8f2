package federation

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/source"
)

// Registry resolves source ids to descriptors and adapters.
type Registry interface {
	Lookup(id string) (source.Descriptor, source.Fetcher, bool)
}

// Budget admits paid source calls.
type Budget interface {
	Spend(ctx context.Context, cost float64) error
}
