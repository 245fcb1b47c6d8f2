package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const unknownRoute = "unknown"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds; streamed searches last until the final wave",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route", "code"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by status class",
		},
		[]string{"method", "route", "code"},
	)

	httpFirstByteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_first_byte_seconds",
			Help:      "Time until the first body byte, i.e. the first progress event of a streamed search",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served, streaming searches included",
		},
	)
)

// Middleware records request count, duration, time to first byte and in-flight requests.
// Routes are labelled by chi pattern and status by class to bound cardinality.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			rec := &recorder{ResponseWriter: w, start: time.Now(), status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			code := statusClass(rec.status)
			httpRequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(rec.start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
			if !rec.firstByte.IsZero() {
				httpFirstByteDuration.WithLabelValues(route).Observe(rec.firstByte.Sub(rec.start).Seconds())
			}
		})
	}
}

// routeLabel returns the matched chi pattern without a trailing slash, or "unknown".
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unknownRoute
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return unknownRoute
	}
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return pattern
}

// statusClass maps 404 to "4xx".
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return string(rune('0'+status/100)) + "xx"
}

// recorder captures the status and the moment the body starts.
type recorder struct {
	http.ResponseWriter
	start       time.Time
	firstByte   time.Time
	status      int
	wroteHeader bool
}

func (w *recorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	if w.firstByte.IsZero() && len(b) > 0 {
		w.firstByte = time.Now()
	}
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // delegating to underlying ResponseWriter
}

// Flush keeps NDJSON progress streaming working behind the middleware.
func (w *recorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
