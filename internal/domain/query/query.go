package query

import (
	"fmt"
	"strings"
)

// Query limits.
const (
	MaxKeywords   = 20
	MaxKeywordLen = 128
	DefaultLimit  = 50
	MaxLimit      = 200
)

// Job type tags with pipeline-level meaning.
const (
	JobTypeFullTime  = "full-time"
	JobTypePartTime  = "part-time"
	JobTypeContract  = "contract"
	JobTypeFreelance = "freelance"
)

// Spec is the normalized search request handed unchanged to every source adapter.
type Spec struct {
	Keywords   []string `json:"keywords"`
	Location   string   `json:"location,omitempty"`
	RemoteOnly bool     `json:"remote_only,omitempty"`
	JobTypes   []string `json:"job_types,omitempty"`
	Page       int      `json:"page,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// New validates and normalizes search parameters.
// Empty keywords are dropped, job types are lowercased, page defaults to 1.
func New(keywords []string, location string, remoteOnly bool, jobTypes []string, page, limit int) (Spec, error) {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if len(k) > MaxKeywordLen {
			return Spec{}, fmt.Errorf("keyword too long (max %d chars)", MaxKeywordLen)
		}
		kws = append(kws, k)
	}
	if len(kws) == 0 {
		return Spec{}, fmt.Errorf("at least one keyword is required")
	}
	if len(kws) > MaxKeywords {
		return Spec{}, fmt.Errorf("too many keywords (max %d)", MaxKeywords)
	}

	types := make([]string, 0, len(jobTypes))
	for _, t := range jobTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Spec{
		Keywords:   kws,
		Location:   strings.TrimSpace(location),
		RemoteOnly: remoteOnly,
		JobTypes:   types,
		Page:       page,
		Limit:      limit,
	}, nil
}

// Text joins the keywords into a single free-text query.
func (s Spec) Text() string { return strings.Join(s.Keywords, " ") }

// HasJobType reports whether any of the given tags was requested.
func (s Spec) HasJobType(tags ...string) bool {
	for _, t := range s.JobTypes {
		for _, want := range tags {
			if strings.EqualFold(t, want) {
				return true
			}
		}
	}
	return false
}

// WithPage returns a copy of the spec pointing at another page.
func (s Spec) WithPage(page int) Spec {
	out := s
	out.Page = page
	return out
}
