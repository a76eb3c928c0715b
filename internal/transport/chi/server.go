package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialdex/internal/domain"
	"github.com/kailas-cloud/trialdex/internal/domain/eligibility"
	logpkg "github.com/kailas-cloud/trialdex/internal/logger"
	facetuc "github.com/kailas-cloud/trialdex/internal/usecase/facet"
	healthuc "github.com/kailas-cloud/trialdex/internal/usecase/health"
	matchuc "github.com/kailas-cloud/trialdex/internal/usecase/match"
	searchuc "github.com/kailas-cloud/trialdex/internal/usecase/search"
	"github.com/kailas-cloud/trialdex/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the read-only query API.
type Server struct {
	search        *searchuc.Service
	facets        *facetuc.Service
	match         *matchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	facets *facetuc.Service,
	match *matchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search: search,
		facets: facets,
		match:  match,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInjectionGuard, http.StatusBadRequest, ErrorCodeInjectionGuard),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, ErrorCodeTimeout),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/trials", s.SearchTrials)
		r.Get("/trials/{nctID}", s.GetTrial)
		r.Get("/facets", s.GetFacets)
		r.Get("/landscape", s.GetLandscape)
		r.Get("/match", s.MatchPatient)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// SearchTrials handles GET /api/v1/trials.
func (s *Server) SearchTrials(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchQuery(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	page, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageToResponse(&page))
}

// GetTrial handles GET /api/v1/trials/{nctID}.
func (s *Server) GetTrial(w http.ResponseWriter, r *http.Request) {
	var nctID string
	err := runtime.BindStyledParameterWithOptions("simple", "nctID", chi.URLParam(r, "nctID"), &nctID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.handleDomainError(w, r, domain.NewValidationError("nct_id", "invalid value: %v", err))
		return
	}
	if err := guard(r.URL.Query()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	rec, err := s.search.Get(r.Context(), nctID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trialToResponse(&rec))
}

// GetFacets handles GET /api/v1/facets.
func (s *Server) GetFacets(w http.ResponseWriter, r *http.Request) {
	set, err := parseFilterQuery(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	f, err := s.facets.Facets(r.Context(), set)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, facetsToResponse(f))
}

// GetLandscape handles GET /api/v1/landscape.
func (s *Server) GetLandscape(w http.ResponseWriter, r *http.Request) {
	set, err := parseFilterQuery(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	land, err := s.facets.Landscape(r.Context(), set)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, landscapeToResponse(&land))
}

// MatchPatient handles GET /api/v1/match.
func (s *Server) MatchPatient(w http.ResponseWriter, r *http.Request) {
	params, err := parseMatchQuery(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	p := matchuc.Patient{
		Age:       params.Age,
		Sex:       eligibility.Sex(params.Sex),
		Condition: params.Condition,
	}
	if params.Country != nil {
		p.Country = *params.Country
	}
	if params.Limit != nil {
		p.Limit = *params.Limit
	}
	matches, err := s.match.Match(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesToResponse(p, matches))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:     report.Status,
		Checks:     report.Checks,
		TrialCount: report.TrialCount,
		Version:    version.Version,
	})
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

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns an error message for the client without exposing internals.
// Validation and guard errors carry only the offending parameter, so they are passed through.
func safeDomainMessage(err error) string {
	var (
		ve *domain.ValidationError
		ig *domain.InjectionGuardViolation
	)
	switch {
	case errors.As(err, &ig):
		return ig.Error()
	case errors.As(err, &ve):
		return ve.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrTimeout,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
