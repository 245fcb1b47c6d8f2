package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jobfed"

// Pipeline Prometheus metrics.
var (
	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of source adapter calls",
		},
		[]string{"source", "status"}, // "success" / "error" / "skipped"
	)

	SourceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Source adapter call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"source"},
	)

	SourceRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_total",
			Help:      "Records returned by sources after normalization",
		},
		[]string{"source"},
	)

	SourceCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cost_total",
			Help:      "Declared per-call cost accumulated by source",
		},
		[]string{"source"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by tier and outcome",
		},
		[]string{"tier", "result"}, // tier: requester/location/stale, result: hit/miss/error
	)

	SearchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_outcomes_total",
			Help:      "Completed searches by result origin",
		},
		[]string{"origin"},
	)

	BudgetRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_remaining",
			Help:      "Remaining source spend budget in currency units",
		},
		[]string{"period"},
	)
)

var registerOnce sync.Once

// RegisterPipelineMetrics registers all collectors with the default registry. Called once from main.
func RegisterPipelineMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SourceRequestsTotal,
			SourceRequestDuration,
			SourceRecordsTotal,
			SourceCostTotal,
			CacheLookupsTotal,
			SearchOutcomesTotal,
			BudgetRemaining,
			httpRequestDuration,
			httpRequestsTotal,
			httpFirstByteDuration,
			httpRequestsInFlight,
		)
	})
}
