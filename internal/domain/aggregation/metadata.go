package aggregation

import "time"

// SourceResult is the outcome of querying one source in one round.
type SourceResult struct {
	Success  bool          `json:"success"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration_ns"`
	Cost     float64       `json:"cost"`
	Pages    int           `json:"pages,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Metadata describes one aggregation: per-source outcomes and totals.
type Metadata struct {
	Sources     map[string]SourceResult `json:"sources"`
	TotalCount  int                     `json:"total_count"`
	UniqueCount int                     `json:"unique_count"`
	TotalCost   float64                 `json:"total_cost"`
	Duration    time.Duration           `json:"duration_ns"`
}

// New returns metadata with an initialized source map.
func New() Metadata {
	return Metadata{Sources: make(map[string]SourceResult)}
}

// Merge folds per-source results into m. A later result for the same source adds to its counters.
func (m *Metadata) Merge(sources map[string]SourceResult) {
	if m.Sources == nil {
		m.Sources = make(map[string]SourceResult, len(sources))
	}
	for id, r := range sources {
		prev, ok := m.Sources[id]
		if !ok {
			m.Sources[id] = r
			m.TotalCost += r.Cost
			continue
		}
		prev.Success = prev.Success || r.Success
		prev.Count += r.Count
		prev.Duration += r.Duration
		prev.Cost += r.Cost
		prev.Pages += r.Pages
		if r.Error != "" {
			prev.Error = r.Error
		}
		m.Sources[id] = prev
		m.TotalCost += r.Cost
	}
}

// Succeeded counts sources that returned without error.
func (m *Metadata) Succeeded() int {
	n := 0
	for _, r := range m.Sources {
		if r.Success {
			n++
		}
	}
	return n
}
