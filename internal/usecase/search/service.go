// Package search is the entry point of the pipeline: it serves a search from the
// cache, the primary sources, the fallback source or stale cache, in that order.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	domcache "github.com/kailas-cloud/jobfed/internal/domain/cache"
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/searchrun"
	"github.com/kailas-cloud/jobfed/internal/logger"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// CacheMode controls how a search uses the cache.
type CacheMode string

// Cache modes.
const (
	// CacheDefault reads before searching and writes good results.
	CacheDefault CacheMode = ""
	// CacheRefresh purges the requester's entries, searches live and writes.
	CacheRefresh CacheMode = "refresh"
	// CacheBypass neither reads nor writes the cache.
	CacheBypass CacheMode = "bypass"
)

// ParseCacheMode accepts "", "default", "refresh" and "bypass".
func ParseCacheMode(s string) (CacheMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return CacheDefault, nil
	case string(CacheRefresh):
		return CacheRefresh, nil
	case string(CacheBypass):
		return CacheBypass, nil
	default:
		return "", fmt.Errorf("%w: unknown cache mode %q", domain.ErrInvalidQuery, s)
	}
}

// Origin names where the records of a result came from.
type Origin string

// Result origins.
const (
	OriginCache    Origin = "cache"
	OriginPrimary  Origin = "primary"
	OriginFallback Origin = "fallback"
	OriginStale    Origin = "stale"
	OriginError    Origin = "error"
)

// Request is one search.
type Request struct {
	RequesterID string               `json:"requester_id"`
	Query       query.Spec           `json:"query"`
	Weights     *profile.Weights     `json:"weights,omitempty"`
	Prefs       selector.Preferences `json:"preferences"`
	Cache       CacheMode            `json:"cache,omitempty"`
}

// Result is the outcome of a search. It always carries an Origin; Error is set only
// for OriginError.
type Result struct {
	ID           string               `json:"id"`
	Records      []record.Ranked      `json:"records"`
	Metadata     aggregation.Metadata `json:"metadata"`
	Origin       Origin               `json:"origin"`
	Cached       bool                 `json:"cached"`
	CacheTier    domcache.Tier        `json:"cache_tier,omitempty"`
	FallbackUsed bool                 `json:"fallback_used"`
	Warning      string               `json:"warning,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// User-facing messages.
const (
	msgBelowThreshold = "fewer results than expected: some sources failed or returned little"
	msgStale          = "live sources unavailable: showing older cached results"
	msgExhausted      = "no job listings are available right now, please try again later"
	msgInternal       = "search failed unexpectedly"
)

// Config tunes the orchestrator.
type Config struct {
	MinResults     int
	FallbackSource string
	FallbackPages  int
}

// Options carries optional collaborators. Zero values are usable.
type Options struct {
	Progressive Progressive
	LastResort  LastResort
	Recorder    Recorder
	Outcomes    *prometheus.CounterVec // labels: origin
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Service orchestrates one search end to end. It never returns an error or panics
// past its boundary; failures surface as OriginError results.
type Service struct {
	fed      Federator
	sel      Selector
	dedup    Deduplicator
	rank     Ranker
	cache    Cache
	prog     Progressive
	last     LastResort
	recorder Recorder
	outcomes *prometheus.CounterVec
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
}

// New creates a search service.
func New(fed Federator, sel Selector, d Deduplicator, r Ranker, c Cache, cfg Config, opts Options) *Service {
	if cfg.MinResults <= 0 {
		cfg.MinResults = progressive.DefaultMinResults
	}
	if opts.LastResort == nil {
		opts.LastResort = NoopLastResort{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Service{
		fed:      fed,
		sel:      sel,
		dedup:    d,
		rank:     r,
		cache:    c,
		prog:     opts.Progressive,
		last:     opts.LastResort,
		recorder: opts.Recorder,
		outcomes: opts.Outcomes,
		cfg:      cfg,
		clock:    opts.Clock,
		logger:   logger.OrNop(opts.Logger),
	}
}

// gathered is what the live sources produced for one search.
type gathered struct {
	ranked   []record.Ranked
	meta     aggregation.Metadata
	fellBack bool
}

// Search runs the full chain: cache, primary sources, fallback source, last resort,
// partial results, stale cache, error.
func (s *Service) Search(ctx context.Context, req Request) (res Result) {
	started := s.clock.Now()
	res.ID = uuid.NewString()
	ctx = logger.With(ctx, s.logger, logger.SearchID(res.ID), logger.Requester(req.RequesterID))
	log := logger.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Search panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = Result{ID: res.ID, Origin: OriginError, Error: msgInternal}
		}
		s.finish(ctx, req, &res, started, log)
	}()

	if err := validate(&req); err != nil {
		return invalid(res.ID, err)
	}

	key := cacheKey(&req)
	if hit, ok := s.readCache(ctx, req, key, log); ok {
		return cached(res.ID, hit)
	}

	g := s.primary(ctx, req)
	s.conclude(ctx, req, key, g, &res, log)
	return res
}

// SearchProgressive runs the search wave by wave and reports every wave through
// onProgress. The last event, the only one with IsComplete set, carries the records
// of the returned Result.
func (s *Service) SearchProgressive(
	ctx context.Context, req Request, onProgress func(progressive.Progress),
) (res Result) {
	if onProgress == nil {
		onProgress = func(progressive.Progress) {}
	}
	started := s.clock.Now()
	res.ID = uuid.NewString()
	ctx = logger.With(ctx, s.logger, logger.SearchID(res.ID), logger.Requester(req.RequesterID))
	log := logger.FromContext(ctx)

	var last progressive.Progress
	defer func() {
		if r := recover(); r != nil {
			log.Error("Progressive search panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = Result{ID: res.ID, Origin: OriginError, Error: msgInternal}
		}
		s.finish(ctx, req, &res, started, log)
		onProgress(progressive.Progress{
			Records:      res.Records,
			Wave:         last.Wave,
			TotalCount:   max(last.TotalCount, res.Metadata.TotalCount),
			UniqueCount:  len(res.Records),
			Sources:      last.Sources,
			Metadata:     res.Metadata,
			FallbackUsed: res.FallbackUsed,
			IsComplete:   true,
		})
	}()

	if err := validate(&req); err != nil {
		return invalid(res.ID, err)
	}

	key := cacheKey(&req)
	if hit, ok := s.readCache(ctx, req, key, log); ok {
		return cached(res.ID, hit)
	}

	var g gathered
	if s.prog != nil {
		preq := progressive.Request{Query: req.Query, Profile: req.Weights, Prefs: req.Prefs}
		last = s.prog.Run(ctx, preq, func(p progressive.Progress) {
			// the deferred block emits the terminal event with the definitive records
			if !p.IsComplete {
				last = p
				onProgress(p)
			}
		})
		g = gathered{ranked: last.Records, meta: last.Metadata, fellBack: last.FallbackUsed}
	} else {
		// without an aggregator the whole search is a single wave
		g = s.primary(ctx, req)
		last = progressive.Progress{Wave: 1, TotalCount: g.meta.TotalCount}
		for id := range g.meta.Sources {
			last.Sources = append(last.Sources, id)
		}
		sort.Strings(last.Sources)
	}

	s.conclude(ctx, req, key, g, &res, log)
	return res
}

// readCache serves the cache unless the mode skips it; refresh purges first.
func (s *Service) readCache(ctx context.Context, req Request, key domcache.Key, log *zap.Logger) (domcache.Hit, bool) {
	switch req.Cache {
	case CacheBypass:
		return domcache.Hit{}, false
	case CacheRefresh:
		if n, err := s.cache.Purge(ctx, req.RequesterID); err != nil {
			log.Warn("Cache purge failed", zap.Error(err))
		} else {
			log.Debug("Cache purged for refresh", zap.Int("deleted", n))
		}
		return domcache.Hit{}, false
	}
	return s.cache.Get(ctx, key)
}

// primary queries the selected sources and, when they fall short, the fallback source.
func (s *Service) primary(ctx context.Context, req Request) gathered {
	ids := s.sel.Select(req.Weights, req.Prefs)
	res := s.fed.QueryMany(ctx, ids, req.Query)

	meta := aggregation.New()
	meta.Merge(res.Sources)
	raw := res.Records
	g := gathered{ranked: s.rank.Rank(s.dedup.Dedupe(raw), req.Weights), meta: meta}
	g.meta.TotalCount = len(raw)

	fb := s.cfg.FallbackSource
	if len(g.ranked) >= s.cfg.MinResults || fb == "" || contains(ids, fb) || ctx.Err() != nil {
		return g
	}

	extra := s.queryFallback(ctx, fb, req.Query)
	g.meta.Merge(extra.Sources)
	if len(extra.Records) > 0 {
		raw = append(raw, extra.Records...)
		g.ranked = s.rank.Rank(s.dedup.Dedupe(raw), req.Weights)
		g.meta.TotalCount = len(raw)
		g.fellBack = true
	}
	return g
}

func (s *Service) queryFallback(ctx context.Context, id string, q query.Spec) federation.Result {
	if s.cfg.FallbackPages > 1 {
		return s.fed.QueryPaginated(ctx, id, q, s.cfg.FallbackPages)
	}
	return s.fed.QueryMany(ctx, []string{id}, q)
}

// conclude turns live results into the final Result, walking the rest of the chain
// when they are not good enough.
func (s *Service) conclude(
	ctx context.Context, req Request, key domcache.Key, g gathered, res *Result, log *zap.Logger,
) {
	res.Metadata = g.meta
	res.Metadata.UniqueCount = len(g.ranked)

	switch {
	case g.fellBack:
		s.store(ctx, req, key, g, log)
		res.Records, res.Origin, res.FallbackUsed = g.ranked, OriginFallback, true
		return
	case len(g.ranked) >= s.cfg.MinResults:
		s.store(ctx, req, key, g, log)
		res.Records, res.Origin = g.ranked, OriginPrimary
		return
	}

	if generated := s.lastResort(ctx, req, log); len(generated) > 0 {
		raw := append(record.RawOf(g.ranked), generated...)
		g.ranked = s.rank.Rank(s.dedup.Dedupe(raw), req.Weights)
		g.meta.TotalCount += len(generated)
		res.Metadata.TotalCount = g.meta.TotalCount
		res.Metadata.UniqueCount = len(g.ranked)
		s.store(ctx, req, key, g, log)
		res.Records, res.Origin, res.FallbackUsed = g.ranked, OriginFallback, true
		return
	}

	if req.Cache != CacheBypass {
		if hit, ok := s.cache.GetStale(ctx, key); ok {
			res.Records, res.Metadata = hit.Entry.Records, hit.Entry.Metadata
			res.Origin, res.Cached, res.CacheTier = OriginStale, true, domcache.TierStale
			res.Warning = msgStale
			return
		}
	}

	// Without a stale entry, a short live list still beats an error.
	if len(g.ranked) > 0 {
		res.Records, res.Origin, res.Warning = g.ranked, OriginPrimary, msgBelowThreshold
		return
	}

	res.Records, res.Origin, res.Error = nil, OriginError, msgExhausted
}

func (s *Service) lastResort(ctx context.Context, req Request, log *zap.Logger) []record.Raw {
	if _, ok := s.last.(NoopLastResort); ok {
		log.Debug("No last-resort generator configured")
		return nil
	}
	recs, err := s.last.Generate(ctx, req.Query, req.Weights)
	if err != nil {
		log.Warn("Last resort failed", zap.Error(err))
		return nil
	}
	out := make([]record.Raw, 0, len(recs))
	for _, r := range recs {
		if r = r.Normalize("generated"); r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) store(ctx context.Context, req Request, key domcache.Key, g gathered, log *zap.Logger) {
	if req.Cache == CacheBypass || len(g.ranked) == 0 {
		return
	}
	if err := s.cache.Put(ctx, key, g.ranked, g.meta); err != nil {
		log.Warn("Cache write failed", zap.Error(err))
	}
}

// finish stamps the duration, counts the outcome and writes the search log.
func (s *Service) finish(ctx context.Context, req Request, res *Result, started time.Time, log *zap.Logger) {
	elapsed := s.clock.Now().Sub(started)
	if !res.Cached {
		res.Metadata.Duration = elapsed
	}
	if res.Records == nil {
		res.Records = []record.Ranked{}
	}
	if s.outcomes != nil {
		s.outcomes.WithLabelValues(string(res.Origin)).Inc()
	}

	log.Info("Search finished",
		zap.String("origin", string(res.Origin)),
		zap.Int("records", len(res.Records)),
		zap.Bool("cached", res.Cached),
		zap.Bool("fallback", res.FallbackUsed),
		zap.Float64("cost", res.Metadata.TotalCost),
		zap.Duration("duration", elapsed),
	)

	if s.recorder != nil {
		s.recorder.Record(ctx, searchrun.Run{
			ID:           res.ID,
			RequesterID:  req.RequesterID,
			Query:        req.Query.Text(),
			Location:     req.Query.Location,
			Origin:       string(res.Origin),
			Cached:       res.Cached,
			FallbackUsed: res.FallbackUsed,
			SourceCount:  len(res.Metadata.Sources),
			TotalCount:   res.Metadata.TotalCount,
			UniqueCount:  len(res.Records),
			TotalCost:    res.Metadata.TotalCost,
			Duration:     elapsed,
			StartedAt:    started,
			Error:        res.Error,
		})
	}
}

func validate(req *Request) error {
	if len(req.Query.Keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword is required", domain.ErrInvalidQuery)
	}
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
	}
	return nil
}

func invalid(id string, err error) Result {
	msg := err.Error()
	if !errors.Is(err, domain.ErrInvalidQuery) {
		msg = fmt.Sprintf("%s: %s", domain.ErrInvalidQuery, msg)
	}
	return Result{ID: id, Origin: OriginError, Error: msg}
}

func cached(id string, hit domcache.Hit) Result {
	return Result{
		ID:        id,
		Records:   hit.Entry.Records,
		Metadata:  hit.Entry.Metadata,
		Origin:    OriginCache,
		Cached:    true,
		CacheTier: hit.Tier,
	}
}

func cacheKey(req *Request) domcache.Key {
	k := domcache.Key{
		RequesterID: req.RequesterID,
		Query:       req.Query.Text(),
		Location:    req.Query.Location,
	}
	if req.Query.RemoteOnly || req.Prefs.Remote {
		remote := true
		k.Remote = &remote
	}
	return k
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
