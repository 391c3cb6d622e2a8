// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/watchtower/internal/adapters/repository"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/ratelimit"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// RunTracker runs a tracker synchronously.
	RunTracker(ctx context.Context, trackerID string) (model.TrackerRun, error)
	// Enqueue requests an asynchronous run.
	Enqueue(ctx context.Context, trackerID string) error
	GetTracker(ctx context.Context, id string) (model.Tracker, error)
	ListRuns(ctx context.Context, trackerID string, limit int) ([]model.TrackerRun, error)
}

// Server wires HTTP routes for the tracker API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	trackersHandler *TrackersHandler
	compareHandler  *CompareHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, limiter ratelimit.Limiter, claims ClaimsProvider) *Server {
	if claims == nil {
		claims = HeaderClaims{}
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		trackersHandler: NewTrackersHandler(deps, limiter, claims),
		compareHandler:  NewCompareHandler(limiter, claims),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /trackers/{id}", MetricsMiddleware(s.trackersHandler.HandleGetTracker, "tracker"))
	mux.HandleFunc("POST /trackers/{id}/run", MetricsMiddleware(s.trackersHandler.HandleRun, "run"))
	mux.HandleFunc("GET /trackers/{id}/runs", MetricsMiddleware(s.trackersHandler.HandleListRuns, "runs"))
	mux.HandleFunc("POST /movement/compare", MetricsMiddleware(s.compareHandler.HandleCompare, "compare"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDenied answers a rate limit denial with 429 and Retry-After.
func writeDenied(w http.ResponseWriter, err error) {
	var denied *ratelimit.DeniedError
	if errors.As(err, &denied) && denied.RetryAfter > 0 {
		secs := int((denied.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", err)
}

// writeDomainError maps service errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ratelimit.IsDenied(err):
		writeDenied(w, err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrRunPending):
		writeError(w, http.StatusConflict, "run_pending", err)
	case errors.Is(err, model.ErrTrackerNotActive):
		writeError(w, http.StatusConflict, "tracker_not_active", err)
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusServiceUnavailable, "backpressure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
