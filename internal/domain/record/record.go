package record

import (
	"strings"
	"time"
)

// Raw is the common shape every source adapter produces.
type Raw struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	Source      string     `json:"source"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	Salary      string     `json:"salary,omitempty"`
	Remote      *bool      `json:"remote,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Valid reports whether the record carries both required fields.
func (r *Raw) Valid() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.Company) != ""
}

// IsRemote reports whether the record is explicitly flagged remote.
func (r *Raw) IsRemote() bool { return r.Remote != nil && *r.Remote }

// Normalize trims free-text fields and fills the source id when the adapter left it empty.
func (r Raw) Normalize(sourceID string) Raw {
	r.ID = strings.TrimSpace(r.ID)
	r.Title = strings.TrimSpace(r.Title)
	r.Company = strings.TrimSpace(r.Company)
	r.Location = strings.TrimSpace(r.Location)
	r.Description = strings.TrimSpace(r.Description)
	r.URL = strings.TrimSpace(r.URL)
	r.Salary = strings.TrimSpace(r.Salary)
	if r.Source == "" {
		r.Source = sourceID
	}
	if len(r.Tags) > 0 {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		r.Tags = tags
	}
	return r
}

// MatchKind explains why a unique record absorbed a duplicate.
type MatchKind string

// Dedup decisions.
const (
	MatchNone  MatchKind = ""
	MatchURL   MatchKind = "url"
	MatchFuzzy MatchKind = "fuzzy"
)

// Unique is a record that survived deduplication.
type Unique struct {
	Raw
	Superseded *Raw      `json:"superseded,omitempty"`
	Match      MatchKind `json:"match,omitempty"`
}

// Breakdown records which scoring components fired for a ranked record.
type Breakdown struct {
	PrimaryHits   int  `json:"primary_hits"`
	SecondaryHits int  `json:"secondary_hits"`
	Location      bool `json:"location"`
	Remote        bool `json:"remote"`
	Salary        bool `json:"salary"`
}

// Ranked is the unit returned to callers and stored in the cache.
type Ranked struct {
	Unique
	Score         float64   `json:"score"`
	Percentage    float64   `json:"percentage"`
	MatchedSkills []string  `json:"matched_skills,omitempty"`
	Breakdown     Breakdown `json:"breakdown"`
}

// RawOf extracts the underlying raw records, preserving order.
func RawOf(rs []Ranked) []Raw {
	out := make([]Raw, len(rs))
	for i := range rs {
		out[i] = rs[i].Raw
	}
	return out
}

// Unranked wraps unique records without scoring them.
func Unranked(us []Unique) []Ranked {
	out := make([]Ranked, len(us))
	for i := range us {
		out[i] = Ranked{Unique: us[i]}
	}
	return out
}
