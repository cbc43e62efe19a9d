// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/anchordrift/internal/adapters/repository"
	service "github.com/okian/anchordrift/internal/app"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/types"
	"github.com/okian/anchordrift/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	SampleDependencies
	DecisionDependencies
}

// Session mirrors the read shape of one session.
type Session = repository.Info

// Streamer upgrades a request into a live decision stream.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	sessionsHandler  *SessionsHandler
	samplesHandler   *SamplesHandler
	decisionsHandler *DecisionsHandler
	streamHandler    *StreamHandler
}

// NewServer creates a new API server with all handlers. stream may be nil.
func NewServer(deps Dependencies, statsProvider StatsProvider, stream Streamer) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		sessionsHandler:  NewSessionsHandler(deps),
		samplesHandler:   NewSamplesHandler(deps),
		decisionsHandler: NewDecisionsHandler(deps),
		streamHandler:    NewStreamHandler(deps, stream),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleDelete, "session"))

	mux.HandleFunc("POST /sessions/{id}/ar-poses", MetricsMiddleware(s.samplesHandler.HandlePostARPoses, "ar_poses"))
	mux.HandleFunc("POST /sessions/{id}/indoor-fixes", MetricsMiddleware(s.samplesHandler.HandlePostIndoorFixes, "indoor_fixes"))
	mux.HandleFunc("POST /sessions/{id}/reset", MetricsMiddleware(s.samplesHandler.HandleReset, "reset"))
	mux.HandleFunc("POST /sessions/{id}/clear", MetricsMiddleware(s.samplesHandler.HandleClear, "clear"))

	mux.HandleFunc("GET /sessions/{id}/decisions", MetricsMiddleware(s.decisionsHandler.HandleList, "decisions"))
	// The stream is hijacked, so it bypasses the metrics wrapper.
	mux.HandleFunc("GET /sessions/{id}/stream", s.streamHandler.HandleStream)
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
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and store sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		metrics.RecordErrorByComponent("api", code)
	}
	writeError(w, status, code, Wrap(op, err))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidSessionID):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrSessionExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrSessionLimit):
		return http.StatusTooManyRequests, "session_limit"
	case errors.Is(err, service.ErrJournalDisabled):
		return http.StatusNotImplemented, "journal_disabled"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrQueueClosed), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Compile-time checks that the service satisfies the handler contracts.
var (
	_ Dependencies  = (*service.Service)(nil)
	_ StatsProvider = (*service.Service)(nil)
)

// decisionsList is the body of GET /sessions/{id}/decisions.
type decisionsList struct {
	SessionID string           `json:"session_id"`
	Decisions []model.Decision `json:"decisions"`
}
