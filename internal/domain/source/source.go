package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// Fetcher is the capability every source adapter implements.
// Zero results is an empty slice and a nil error; errors are reserved for transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, q query.Spec) ([]record.Raw, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, q query.Spec) ([]record.Raw, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, q query.Spec) ([]record.Raw, error) {
	return f(ctx, q)
}

// Tier is the expected latency class of a source.
type Tier int

// Latency tiers.
const (
	TierFast   Tier = 1
	TierMedium Tier = 2
	TierSlow   Tier = 3
)

// IsValid reports whether t is one of the known tiers.
func (t Tier) IsValid() bool { return t >= TierFast && t <= TierSlow }

// String returns the tier label used in logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierMedium:
		return "medium"
	case TierSlow:
		return "slow"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Timeout is the per-call budget for the tier, margin included.
func (t Tier) Timeout() time.Duration {
	switch t {
	case TierFast:
		return 5 * time.Second
	case TierMedium:
		return 15 * time.Second
	default:
		return 45 * time.Second
	}
}

// Descriptor is the static catalog entry of a source.
type Descriptor struct {
	ID          string        `json:"id"`
	Endpoint    string        `json:"endpoint,omitempty"`
	Tier        Tier          `json:"tier"`
	CostPerCall float64       `json:"cost_per_call"`
	MaxResults  int           `json:"max_results"`
	Enabled     bool          `json:"enabled"`
	Timeout     time.Duration `json:"-"`
}

// CallTimeout returns the explicit timeout or the tier default.
func (d *Descriptor) CallTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return d.Tier.Timeout()
}

// Validate checks the descriptor invariants.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("source id is required")
	}
	if !d.Tier.IsValid() {
		return fmt.Errorf("source %s: invalid tier %d", d.ID, int(d.Tier))
	}
	if d.CostPerCall < 0 {
		return fmt.Errorf("source %s: cost_per_call must not be negative", d.ID)
	}
	if d.MaxResults < 0 {
		return fmt.Errorf("source %s: max_results must not be negative", d.ID)
	}
	return nil
}

type entry struct {
	desc    Descriptor
	fetcher Fetcher
}

// Registry holds descriptors and their adapter handles.
// Everything except the enabled flag is fixed after registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a source. Registration order is the listing order.
func (r *Registry) Register(d Descriptor, f Fetcher) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("source %s: fetcher is required", d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[d.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrSourceAlreadyRegistered, d.ID)
	}
	r.entries[d.ID] = &entry{desc: d, fetcher: f}
	r.order = append(r.order, d.ID)
	return nil
}

// Lookup returns the descriptor and adapter for id.
func (r *Registry) Lookup(id string) (Descriptor, Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, nil, false
	}
	return e.desc, e.fetcher, true
}

// IsEnabled reports whether id is registered and enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return ok && e.desc.Enabled
}

// SetEnabled toggles a source at runtime.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	e.desc.Enabled = enabled
	return nil
}

// Descriptors lists all sources in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// EnabledCount returns the number of enabled sources.
func (r *Registry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.desc.Enabled {
			n++
		}
	}
	return n
}

// ByTier returns enabled source ids of a tier, sorted by ascending cost then id.
func (r *Registry) ByTier(t Tier) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var descs []Descriptor
	for _, id := range r.order {
		if d := r.entries[id].desc; d.Enabled && d.Tier == t {
			descs = append(descs, d)
		}
	}
	sort.SliceStable(descs, func(i, j int) bool {
		if descs[i].CostPerCall != descs[j].CostPerCall {
			return descs[i].CostPerCall < descs[j].CostPerCall
		}
		return descs[i].ID < descs[j].ID
	})

	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return ids
}
