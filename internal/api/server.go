// Package api exposes the HTTP interface for the aggregation service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/metrics"
	"github.com/surfacehub/contractor-aggregator/internal/orchestrator"
)

// BatchRunner triggers batch scrape runs. Implemented by the orchestrator.
type BatchRunner interface {
	RunBatch(ctx context.Context, category contractor.Category, locationFilter string, timeout time.Duration) (orchestrator.BatchResult, error)
}

// Config carries the server's behavioral knobs.
type Config struct {
	AuthEnabled bool
	APIKey      string
	// MaxRequestTimeout caps the timeout a scrape request may ask for.
	MaxRequestTimeout time.Duration
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router   chi.Router
	runner   BatchRunner
	store    contractor.ContractorStore
	runStore contractor.RunStore
	idGen    contractor.IDGenerator
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner BatchRunner,
	store contractor.ContractorStore,
	runStore contractor.RunStore,
	idGen contractor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.MaxRequestTimeout <= 0 {
		cfg.MaxRequestTimeout = 30 * time.Minute
	}
	s := &Server{
		runner:   runner,
		store:    store,
		runStore: runStore,
		idGen:    idGen,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.triggerScrape)
		r.Get("/contractors", s.listContractors)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard downstream; a cheap read proves it out.
	if _, err := s.store.List(r.Context(), contractor.ListFilter{Limit: 1}); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	Category       string `json:"category"`
	Location       string `json:"location_filter"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type scrapeResponse struct {
	Run     contractor.Run                   `json:"run"`
	Samples []contractor.CanonicalContractor `json:"samples,omitempty"`
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Category == "" {
		s.writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout > s.cfg.MaxRequestTimeout {
		timeout = s.cfg.MaxRequestTimeout
	}

	result, err := s.runner.RunBatch(r.Context(), contractor.Category(req.Category), req.Location, timeout)
	if err != nil {
		if errors.Is(err, contractor.ErrInvalidCategory) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, scrapeResponse{Run: result.Run, Samples: result.SampleRecords})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runStore.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listContractors(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list contractors failed")
		return
	}
	if records == nil {
		records = []contractor.CanonicalContractor{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"contractors": records,
		"count":       len(records),
	})
}

func parseListFilter(r *http.Request) (contractor.ListFilter, error) {
	q := r.URL.Query()
	filter := contractor.ListFilter{
		City:      q.Get("city"),
		State:     q.Get("state"),
		Category:  q.Get("category"),
		Specialty: q.Get("specialty"),
		Limit:     100,
	}
	if v := q.Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			return contractor.ListFilter{}, errors.New("verified must be a boolean")
		}
		filter.Verified = &verified
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return contractor.ListFilter{}, errors.New("limit must be a positive integer")
		}
		if limit > 1000 {
			limit = 1000
		}
		filter.Limit = limit
	}
	return filter, nil
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := s.idGen.NewID()
		if err != nil {
			reqID = "unknown"
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
