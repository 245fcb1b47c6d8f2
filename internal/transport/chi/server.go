// Package chi exposes the search pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/usage"
	healthuc "github.com/kailas-cloud/jobfed/internal/usecase/health"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	searchuc "github.com/kailas-cloud/jobfed/internal/usecase/search"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeValidationFailed = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeSourceNotFound   = "source_not_found"
	CodeNotFound         = "not_found"
	CodeBudgetExceeded   = "budget_exceeded"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API.
type Server struct {
	search        Searcher
	cache         CacheAdmin
	sources       SourceAdmin
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	cache CacheAdmin,
	sources SourceAdmin,
	reports UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:  search,
		cache:   cache,
		sources: sources,
		usage:   reports,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrSourceNotFound, http.StatusNotFound, CodeSourceNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrBudgetExceeded, http.StatusPaymentRequired, CodeBudgetExceeded),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r gochi.Router) {
		r.Post("/search", s.Search)
		r.Post("/search/stream", s.SearchStream)
		r.Delete("/cache/{requester}", s.PurgeCache)
		r.Post("/cache/sweep", s.SweepCache)
		r.Get("/sources", s.ListSources)
		r.Patch("/sources/{id}", s.UpdateSource)
		r.Get("/usage", s.GetUsage)
	})
}

// SearchRequest is the body of the search endpoints.
type SearchRequest struct {
	RequesterID string           `json:"requester_id"`
	Keywords    []string         `json:"keywords"`
	Location    string           `json:"location"`
	RemoteOnly  bool             `json:"remote_only"`
	JobTypes    []string         `json:"job_types"`
	Page        int              `json:"page"`
	Limit       int              `json:"limit"`
	MaxSources  int              `json:"max_sources"`
	Weights     *profile.Weights `json:"weights"`
	Cache       string           `json:"cache"`
}

func (b *SearchRequest) toDomain() (searchuc.Request, error) {
	if b.RequesterID == "" {
		return searchuc.Request{}, fmt.Errorf("%w: requester_id is required", domain.ErrInvalidQuery)
	}
	q, err := query.New(b.Keywords, b.Location, b.RemoteOnly, b.JobTypes, b.Page, b.Limit)
	if err != nil {
		return searchuc.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	if b.Weights != nil {
		if err := b.Weights.Validate(); err != nil {
			return searchuc.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
	}
	mode, err := searchuc.ParseCacheMode(b.Cache)
	if err != nil {
		return searchuc.Request{}, err
	}
	return searchuc.Request{
		RequesterID: b.RequesterID,
		Query:       q,
		Weights:     b.Weights,
		Prefs:       selector.PreferencesFor(q, b.MaxSources),
		Cache:       mode,
	}, nil
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (searchuc.Request, bool) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return searchuc.Request{}, false
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return searchuc.Request{}, false
	}
	return req, true
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	res := s.search.Search(r.Context(), req)
	status := http.StatusOK
	if res.Origin == searchuc.OriginError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// SearchStream handles POST /v1/search/stream: one JSON progress event per line,
// flushed as each wave lands. The last line has is_complete set.
func (s *Server) SearchStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	s.search.SearchProgressive(r.Context(), req, func(p progressive.Progress) {
		// a disconnected client cancels the request context, which stops the waves
		if err := enc.Encode(p); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// PurgeCache handles DELETE /v1/cache/{requester}.
func (s *Server) PurgeCache(w http.ResponseWriter, r *http.Request) {
	requester := gochi.URLParam(r, "requester")
	n, err := s.cache.Purge(r.Context(), requester)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// SweepCache handles POST /v1/cache/sweep.
func (s *Server) SweepCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Sweep(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// ListSources handles GET /v1/sources.
func (s *Server) ListSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.sources.Descriptors()})
}

// UpdateSource handles PATCH /v1/sources/{id}.
func (s *Server) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "enabled is required")
		return
	}

	id := gochi.URLParam(r, "id")
	if err := s.sources.SetEnabled(id, *body.Enabled); err != nil {
		s.handleDomainError(w, err)
		return
	}
	for _, d := range s.sources.Descriptors() {
		if d.ID == id {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	s.handleDomainError(w, domain.ErrSourceNotFound)
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.usage.Report(r.Context(), period))
}

// HealthCheck handles GET /health. Degraded still serves searches and answers 200.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrSourceNotFound,
		domain.ErrNotFound,
		domain.ErrBudgetExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// handleDomainError maps domain errors to HTTP responses.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
