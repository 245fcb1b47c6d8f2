package search

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/searchrun"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// Federator runs federation rounds.
type Federator interface {
	QueryMany(ctx context.Context, ids []string, q query.Spec) federation.Result
	QueryPaginated(ctx context.Context, id string, q query.Spec, pages int) federation.Result
}

// Selector picks the primary sources.
type Selector interface {
	Select(p *profile.Weights, prefs selector.Preferences) []string
}

// Deduplicator collapses duplicate postings.
type Deduplicator interface {
	Dedupe(records []record.Raw) []record.Unique
}

// Ranker scores postings against a profile.
type Ranker interface {
	Rank(records []record.Unique, p *profile.Weights) []record.Ranked
}

// Cache is the result cache.
type Cache interface {
	Get(ctx context.Context, key domcache.Key) (domcache.Hit, bool)
	GetStale(ctx context.Context, key domcache.Key) (domcache.Hit, bool)
	Put(ctx context.Context, key domcache.Key, records []record.Ranked, meta aggregation.Metadata) error
	Purge(ctx context.Context, requesterID string) (int, error)
}

// Progressive runs a search wave by wave.
type Progressive interface {
	Run(ctx context.Context, req progressive.Request, onProgress func(progressive.Progress)) progressive.Progress
}

// LastResort produces postings when every real source came up short.
type LastResort interface {
	Generate(ctx context.Context, q query.Spec, p *profile.Weights) ([]record.Raw, error)
}

// Recorder persists a summary of each search.
type Recorder interface {
	Record(ctx context.Context, run searchrun.Run)
}
