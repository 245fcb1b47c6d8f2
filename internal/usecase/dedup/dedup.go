// Package dedup collapses records from many sources into unique postings.
package dedup

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/domain/record"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// DefaultThreshold is the description similarity above which two fuzzy-keyed records are one posting.
const DefaultThreshold = 0.85

// Deduplicator is stateless between calls and safe for concurrent use.
type Deduplicator struct {
	threshold float64
	logger    *zap.Logger
}

// New creates a deduplicator. threshold <= 0 selects DefaultThreshold.
func New(threshold float64, l *zap.Logger) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold, logger: logger.OrNop(l)}
}

// Threshold returns the configured similarity threshold.
func (d *Deduplicator) Threshold() float64 { return d.threshold }

// Dedupe returns the unique postings in first-seen order. Records with a usable URL
// collapse on the normalized URL; the rest collapse on their fingerprint when their
// descriptions are similar enough. Of two duplicates the strictly more complete one
// survives in the slot of the first. Passes repeat until nothing merges, which makes
// Dedupe idempotent.
func (d *Deduplicator) Dedupe(records []record.Raw) []record.Unique {
	in := make([]record.Unique, 0, len(records))
	for _, r := range records {
		if usable(&r) {
			in = append(in, record.Unique{Raw: r})
		}
	}

	for {
		out := d.pass(in)
		if len(out) == len(in) {
			return out
		}
		in = out
	}
}

// Fold merges records into an already deduplicated set in one pass. Every slot of
// prev survives in place: a new record may replace a posting with a more complete
// duplicate, but two postings of prev are never merged into each other, so the
// result is never shorter than prev.
func (d *Deduplicator) Fold(prev []record.Unique, records []record.Raw) []record.Unique {
	ix := d.newIndex(len(prev) + len(records))
	for _, u := range prev {
		ix.seed(u)
	}
	for _, r := range records {
		if usable(&r) {
			ix.add(record.Unique{Raw: r})
		}
	}
	return ix.out
}

func usable(r *record.Raw) bool {
	return strings.TrimSpace(r.Title) != "" || strings.TrimSpace(r.Company) != ""
}

func (d *Deduplicator) pass(in []record.Unique) []record.Unique {
	ix := d.newIndex(len(in))
	for _, u := range in {
		ix.add(u)
	}
	return ix.out
}

// survivor tracks a fuzzy-keyed slot and its description tokens.
type survivor struct {
	slot   int
	tokens map[string]struct{}
}

// index is the slot table of one pass.
type index struct {
	d       *Deduplicator
	out     []record.Unique
	byURL   map[string]int
	byPrint map[string][]*survivor
}

func (d *Deduplicator) newIndex(n int) *index {
	return &index{
		d:       d,
		out:     make([]record.Unique, 0, n),
		byURL:   make(map[string]int),
		byPrint: make(map[string][]*survivor),
	}
}

// seed registers u as a slot without trying to merge it.
func (ix *index) seed(u record.Unique) {
	slot := len(ix.out)
	ix.out = append(ix.out, u)
	if key := NormalizeURL(u.URL); key != "" {
		if _, ok := ix.byURL[key]; !ok {
			ix.byURL[key] = slot
		}
		return
	}
	fp := Fingerprint(&u.Raw)
	ix.byPrint[fp] = append(ix.byPrint[fp], &survivor{slot: slot, tokens: Tokens(u.Description)})
}

// add merges u into a matching slot or opens a new one.
func (ix *index) add(u record.Unique) {
	if key := NormalizeURL(u.URL); key != "" {
		if slot, ok := ix.byURL[key]; ok {
			ix.out[slot] = merge(ix.out[slot], u, record.MatchURL)
			return
		}
		ix.byURL[key] = len(ix.out)
		ix.out = append(ix.out, u)
		return
	}

	fp := Fingerprint(&u.Raw)
	tokens := Tokens(u.Description)
	for _, s := range ix.byPrint[fp] {
		sim := Jaccard(s.tokens, tokens)
		if sim > ix.d.threshold {
			ix.out[s.slot] = merge(ix.out[s.slot], u, record.MatchFuzzy)
			s.tokens = Tokens(ix.out[s.slot].Description)
			return
		}
		ix.d.logger.Debug("Fingerprint collision kept as distinct posting",
			zap.String("fingerprint", fp),
			zap.Float64("similarity", sim),
			logger.Source(u.Source),
		)
	}
	ix.byPrint[fp] = append(ix.byPrint[fp], &survivor{slot: len(ix.out), tokens: tokens})
	ix.out = append(ix.out, u)
}

// merge keeps the more complete of two duplicates; ties keep the existing one.
// The loser is recorded as superseded by the winner.
func merge(existing, candidate record.Unique, kind record.MatchKind) record.Unique {
	if Completeness(&candidate.Raw) > Completeness(&existing.Raw) {
		loser := existing.Raw
		candidate.Superseded = &loser
		candidate.Match = kind
		return candidate
	}
	loser := candidate.Raw
	existing.Superseded = &loser
	existing.Match = kind
	return existing
}
