// Package selector picks which sources a search should query.
package selector

import (
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
)

// Rules configure the fixed and conditional parts of the selection.
type Rules struct {
	// AlwaysInclude is the fast first tier. Empty means every enabled fast-tier source.
	AlwaysInclude       []string
	RemoteSpecialist    string
	FreelanceSpecialist string
}

// Preferences are the per-search knobs that influence selection.
type Preferences struct {
	Remote     bool     `json:"remote,omitempty"`
	JobTypes   []string `json:"job_types,omitempty"`
	MaxSources int      `json:"max_sources,omitempty"` // 0 = no cap
}

// PreferencesFor derives preferences from a query spec.
func PreferencesFor(q query.Spec, maxSources int) Preferences {
	return Preferences{Remote: q.RemoteOnly, JobTypes: q.JobTypes, MaxSources: maxSources}
}

// Selector turns a profile and preferences into an ordered source list.
// It is a pure function of the registry state and its inputs.
type Selector struct {
	reg   Registry
	rules Rules
}

// New creates a selector.
func New(reg Registry, rules Rules) *Selector {
	return &Selector{reg: reg, rules: rules}
}

// Select returns the ordered source ids to query: fast tier, medium tier, then
// matching specialists, capped at MaxSources and stripped of disabled sources.
func (s *Selector) Select(p *profile.Weights, prefs Preferences) []string {
	fast := s.rules.AlwaysInclude
	if len(fast) == 0 {
		fast = s.reg.ByTier(source.TierFast)
	}

	ids := appendUnique(nil, fast...)
	ids = appendUnique(ids, s.reg.ByTier(source.TierMedium)...)
	ids = appendUnique(ids, s.Specialists(p, prefs)...)

	if prefs.MaxSources > 0 && len(ids) > prefs.MaxSources {
		ids = ids[:prefs.MaxSources]
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.reg.IsEnabled(id) {
			out = append(out, id)
		}
	}
	return out
}

// Specialists returns only the conditionally included sources.
func (s *Selector) Specialists(p *profile.Weights, prefs Preferences) []string {
	var out []string
	if s.rules.RemoteSpecialist != "" && (prefs.Remote || (p != nil && p.Remote)) {
		out = append(out, s.rules.RemoteSpecialist)
	}
	if s.rules.FreelanceSpecialist != "" && wantsFreelance(prefs.JobTypes) {
		out = append(out, s.rules.FreelanceSpecialist)
	}
	return out
}

// SpecialistIDs returns every configured specialist, whether or not it matches.
func (s *Selector) SpecialistIDs() []string {
	return appendUnique(nil, s.rules.RemoteSpecialist, s.rules.FreelanceSpecialist)
}

func wantsFreelance(jobTypes []string) bool {
	q := query.Spec{JobTypes: jobTypes}
	return q.HasJobType(query.JobTypeFreelance, query.JobTypeContract)
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		if id == "" || contains(dst, id) {
			continue
		}
		dst = append(dst, id)
	}
	return dst
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
