// Package progressive runs a search in ordered waves, fastest and cheapest sources
// first, and reports the accumulated, deduplicated and ranked results after each wave.
package progressive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain/aggregation"
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
	"github.com/kailas-cloud/jobfed/internal/logger"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// Defaults.
const (
	DefaultMinResults = 10
	specialistWave    = 4
)

// Progress is one snapshot of a running search.
type Progress struct {
	Records     []record.Ranked      `json:"records"`
	Wave        int                  `json:"wave"`
	TotalCount  int                  `json:"total_count"`  // raw records fetched so far
	UniqueCount int                  `json:"unique_count"` // len(Records)
	Sources     []string             `json:"sources"`      // sources queried so far, in order
	Metadata    aggregation.Metadata `json:"metadata"`
	// FallbackUsed is set once the fallback wave contributed records.
	FallbackUsed bool `json:"fallback_used,omitempty"`
	IsComplete   bool `json:"is_complete"`
}

// Request is one progressive search.
type Request struct {
	Query   query.Spec
	Profile *profile.Weights
	Prefs   selector.Preferences
}

// Config tunes the wave plan.
type Config struct {
	// Waves lists source ids per wave. Empty derives four waves from the source tiers.
	Waves          [][]string
	MinResults     int
	FallbackSource string
	// FallbackPages > 1 paginates the fallback source.
	FallbackPages int
	// Clock times the run; nil uses the system clock.
	Clock clock.Clock
}

// Aggregator is safe for concurrent use; each Run keeps its own state.
type Aggregator struct {
	fed    Federator
	dedup  Deduplicator
	rank   Ranker
	sel    Selector
	reg    Registry
	cfg    Config
	logger *zap.Logger
}

// New creates an aggregator.
func New(fed Federator, d Deduplicator, r Ranker, sel Selector, reg Registry, cfg Config, l *zap.Logger) *Aggregator {
	if cfg.MinResults <= 0 {
		cfg.MinResults = DefaultMinResults
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Aggregator{fed: fed, dedup: d, rank: r, sel: sel, reg: reg, cfg: cfg, logger: logger.OrNop(l)}
}

// Plan returns the waves a request would run, without the conditional fallback wave.
// Empty waves are dropped; wave numbers are the positions in the returned slice plus one.
func (a *Aggregator) Plan(req Request) [][]string {
	specialists := a.sel.Specialists(req.Profile, req.Prefs)

	var waves [][]string
	if len(a.cfg.Waves) > 0 {
		waves = a.configuredWaves(specialists)
	} else {
		waves = a.tierWaves(req, specialists)
	}

	seen := make(map[string]bool)
	out := make([][]string, 0, len(waves))
	for _, w := range waves {
		var ids []string
		for _, id := range w {
			if seen[id] || !a.reg.IsEnabled(id) {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			out = append(out, ids)
		}
	}
	return out
}

func (a *Aggregator) configuredWaves(specialists []string) [][]string {
	waves := make([][]string, len(a.cfg.Waves))
	for i, w := range a.cfg.Waves {
		waves[i] = append([]string(nil), w...)
	}
	at := specialistWave - 1
	if at >= len(waves) {
		at = len(waves) - 1
	}
	waves[at] = append(waves[at], specialists...)
	return waves
}

// tierWaves splits the selected sources into: cheapest fast source, remaining fast
// sources, medium tier, then the rest of the slow tier plus the matching specialists.
// Configured specialists that did not match and the fallback source stay out of the
// plan. Slow sources respect the MaxSources cap; matching specialists do not.
func (a *Aggregator) tierWaves(req Request, specialists []string) [][]string {
	waves := make([][]string, specialistWave)
	skip := make(map[string]bool)
	for _, id := range a.sel.SpecialistIDs() {
		skip[id] = true
	}

	selected := a.sel.Select(req.Profile, req.Prefs)
	picked := make(map[string]bool, len(selected))
	for _, id := range selected {
		picked[id] = true
		if skip[id] {
			continue
		}
		desc, _, ok := a.reg.Lookup(id)
		if !ok {
			continue
		}
		switch desc.Tier {
		case source.TierFast:
			if len(waves[0]) == 0 {
				waves[0] = append(waves[0], id)
			} else {
				waves[1] = append(waves[1], id)
			}
		case source.TierMedium:
			waves[2] = append(waves[2], id)
		default:
			waves[3] = append(waves[3], id)
		}
	}

	n := len(selected)
	for _, id := range a.reg.ByTier(source.TierSlow) {
		if req.Prefs.MaxSources > 0 && n >= req.Prefs.MaxSources {
			break
		}
		if skip[id] || picked[id] || id == a.cfg.FallbackSource {
			continue
		}
		waves[3] = append(waves[3], id)
		n++
	}
	waves[3] = append(waves[3], specialists...)
	return waves
}

// run is the mutable state of one Run.
type run struct {
	req     Request
	clk     clock.Clock
	started time.Time
	raw     []record.Raw
	unique  []record.Unique
	ranked  []record.Ranked
	queried []string
	meta    aggregation.Metadata
	wave    int
	// fellBack is set once the fallback wave contributed records.
	fellBack bool
}

// Run executes the wave plan and calls onProgress after every wave. The last event,
// and only the last, has IsComplete set. A cancelled ctx stops before the next wave;
// the terminal snapshot then repeats the number of the last wave that ran.
// Run returns the terminal snapshot.
func (a *Aggregator) Run(ctx context.Context, req Request, onProgress func(Progress)) Progress {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	st := &run{req: req, clk: a.cfg.Clock, started: a.cfg.Clock.Now(), meta: aggregation.New()}
	plan := a.Plan(req)

	for i, ids := range plan {
		if ctx.Err() != nil {
			break
		}
		st.wave = i + 1
		a.wave(ctx, st, ids, false)

		last := i == len(plan)-1 || ctx.Err() != nil
		if last && a.needsFallback(ctx, st) {
			last = false
		}
		if !last {
			onProgress(st.snapshot(false))
		} else {
			final := st.snapshot(true)
			onProgress(final)
			return final
		}
	}

	if a.needsFallback(ctx, st) {
		st.wave++
		a.wave(ctx, st, []string{a.cfg.FallbackSource}, true)
	}

	final := st.snapshot(true)
	onProgress(final)
	return final
}

// Stream runs the search in the background and delivers every snapshot on the
// returned channel, which is closed after the terminal snapshot.
func (a *Aggregator) Stream(ctx context.Context, req Request) <-chan Progress {
	// One slot per planned wave plus the fallback wave and a spare, so the
	// producer never blocks on a reader that went away.
	ch := make(chan Progress, len(a.Plan(req))+2)
	go func() {
		defer close(ch)
		a.Run(ctx, req, func(p Progress) { ch <- p })
	}()
	return ch
}

func (a *Aggregator) needsFallback(ctx context.Context, st *run) bool {
	id := a.cfg.FallbackSource
	if id == "" || ctx.Err() != nil || len(st.ranked) >= a.cfg.MinResults {
		return false
	}
	for _, q := range st.queried {
		if q == id {
			return false
		}
	}
	return a.reg.IsEnabled(id)
}

// wave queries ids and folds the outcome into st. A panic is logged and the wave
// contributes nothing.
func (a *Aggregator) wave(ctx context.Context, st *run, ids []string, fallback bool) {
	log := logger.FromContextOr(ctx, a.logger)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Wave failed",
				logger.Wave(st.wave),
				zap.Strings("sources", ids),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	st.queried = append(st.queried, ids...)

	res := a.query(ctx, ids, st.req.Query, fallback)
	st.raw = append(st.raw, res.Records...)
	st.meta.Merge(res.Sources)
	st.fellBack = st.fellBack || (fallback && len(res.Records) > 0)
	// Fold, not a full re-dedupe: postings already reported never merge away.
	st.unique = a.dedup.Fold(st.unique, res.Records)
	st.ranked = a.rank.Rank(st.unique, st.req.Profile)

	log.Info("Wave complete",
		logger.Wave(st.wave),
		zap.Strings("sources", ids),
		zap.Bool("fallback", fallback),
		zap.Int("fetched", len(res.Records)),
		zap.Int("unique", len(st.ranked)),
	)
}

func (a *Aggregator) query(ctx context.Context, ids []string, q query.Spec, fallback bool) federation.Result {
	if fallback && a.cfg.FallbackPages > 1 && len(ids) == 1 {
		return a.fed.QueryPaginated(ctx, ids[0], q, a.cfg.FallbackPages)
	}
	return a.fed.QueryMany(ctx, ids, q)
}

func (st *run) snapshot(complete bool) Progress {
	meta := st.meta
	meta.Sources = make(map[string]aggregation.SourceResult, len(st.meta.Sources))
	for k, v := range st.meta.Sources {
		meta.Sources[k] = v
	}
	meta.TotalCount = len(st.raw)
	meta.UniqueCount = len(st.ranked)
	meta.Duration = st.clk.Now().Sub(st.started)

	return Progress{
		Records:      append([]record.Ranked(nil), st.ranked...),
		Wave:         st.wave,
		TotalCount:   len(st.raw),
		UniqueCount:  len(st.ranked),
		Sources:      append([]string(nil), st.queried...),
		Metadata:     meta,
		FallbackUsed: st.fellBack,
		IsComplete:   complete,
	}
}
