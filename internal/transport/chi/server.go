// Package chi is the HTTP API of the service.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	healthuc "github.com/crookcounty/surveysearch/internal/usecase/health"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

// SessionHeader carries the session identifier in requests and responses.
const SessionHeader = "X-Session-ID"

// Error codes of the API.
const (
	CodeBadRequest        = "bad_request"
	CodeValidationFailed  = "validation_failed"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeSourceUnavailable = "source_unavailable"
	CodeNotReady          = "not_ready"
	CodeInternalError     = "internal_error"
)

type submitter interface {
	Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome
}

type sessions interface {
	Acquire(id string) (*searchuc.Session, error)
	Get(id string) (*searchuc.Session, error)
}

type attributeCache interface {
	Prefetch(ctx context.Context, id dataset.ID) ([]record.Record, error)
	Snapshot(id dataset.ID) record.Snapshot
	IsReady(id dataset.ID) bool
	Datasets() []dataset.ID
}

type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the search API.
type Server struct {
	search         submitter
	sessions       sessions
	cache          attributeCache
	health         healthChecker
	maxQueryLength int
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search submitter,
	sess sessions,
	cache attributeCache,
	health healthChecker,
	maxQueryLength int,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:         search,
		sessions:       sess,
		cache:          cache,
		health:         health,
		maxQueryLength: maxQueryLength,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrSourceUnavailable, http.StatusBadGateway, CodeSourceUnavailable),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, CodeNotReady),
	}
	return s
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/prefetch", s.Prefetch)
		r.Get("/snapshots", s.ListSnapshots)
		r.Get("/sessions/{id}", s.GetSession)
		r.Delete("/sessions/{id}/graphics", s.ClearGraphics)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client message for err without exposing
// internals. Validation errors keep their detail.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	for _, s := range []error{domain.ErrNotFound, domain.ErrSourceUnavailable, domain.ErrNotReady} {
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

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
