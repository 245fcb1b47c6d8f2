// Package rank scores unique postings against a caller's skill profile.
package rank

import (
	"math"
	"sort"
	"strings"

	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// Ranker scores and orders records. Safe for concurrent use.
type Ranker struct {
	matcher Matcher
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithMatcher replaces the default TextMatcher.
func WithMatcher(m Matcher) Option {
	return func(r *Ranker) {
		if m != nil {
			r.matcher = m
		}
	}
}

// New creates a ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{matcher: TextMatcher{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rank scores every record and sorts by score descending. Equal scores keep input order.
// A nil profile returns the records unscored in input order.
func (rk *Ranker) Rank(records []record.Unique, p *profile.Weights) []record.Ranked {
	out := record.Unranked(records)
	if p == nil {
		return out
	}

	maxScore := p.MaxScore()
	for i := range out {
		rk.score(&out[i], p)
		if maxScore > 0 {
			out[i].Percentage = math.Min(100, out[i].Score/maxScore*100)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (rk *Ranker) score(r *record.Ranked, p *profile.Weights) {
	raw := &r.Raw
	var score float64

	for _, s := range p.Primary {
		if rk.matcher.Match(s.Name, raw) {
			score += s.Weight * profile.PrimaryMultiplier
			r.Breakdown.PrimaryHits++
			r.MatchedSkills = append(r.MatchedSkills, s.Name)
		}
	}
	for _, s := range p.Secondary {
		if rk.matcher.Match(s.Name, raw) {
			score += s.Weight * profile.SecondaryMultiplier
			r.Breakdown.SecondaryHits++
			r.MatchedSkills = append(r.MatchedSkills, s.Name)
		}
	}

	if loc := strings.ToLower(strings.TrimSpace(p.Location)); loc != "" &&
		strings.Contains(strings.ToLower(raw.Location), loc) {
		score += profile.LocationBonus
		r.Breakdown.Location = true
	}
	if p.Remote && raw.IsRemote() {
		score += profile.RemoteBonus
		r.Breakdown.Remote = true
	}
	if p.MinSalary > 0 {
		if s := ParseSalary(raw.Salary); s > 0 && s >= p.MinSalary {
			score += profile.SalaryBonus
			r.Breakdown.Salary = true
		}
	}

	r.Score = score
}
