package progressive

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// Federator runs one federation round.
type Federator interface {
	QueryMany(ctx context.Context, ids []string, q query.Spec) federation.Result
	QueryPaginated(ctx context.Context, id string, q query.Spec, pages int) federation.Result
}

// Deduplicator folds a wave's records into the postings collected so far.
type Deduplicator interface {
	Fold(prev []record.Unique, records []record.Raw) []record.Unique
}

// Ranker scores postings against a profile.
type Ranker interface {
	Rank(records []record.Unique, p *profile.Weights) []record.Ranked
}

// Selector picks the sources of a search.
type Selector interface {
	Select(p *profile.Weights, prefs selector.Preferences) []string
	Specialists(p *profile.Weights, prefs selector.Preferences) []string
	SpecialistIDs() []string
}

// Registry exposes source tiers and switches.
type Registry interface {
	Lookup(id string) (source.Descriptor, source.Fetcher, bool)
	IsEnabled(id string) bool
	ByTier(t source.Tier) []string
}
