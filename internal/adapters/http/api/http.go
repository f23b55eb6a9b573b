// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit scores one form submission and records it in the session.
	Submit(ctx context.Context, sessionID string, sub model.Submission) (string, service.Prediction, error)

	// Read operations expose the session's history.
	History(ctx context.Context, sessionID string) ([]model.PredictionRecord, error)
	Export(ctx context.Context, sessionID string) (service.Export, error)

	EndSession(ctx context.Context, sessionID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	predictionsHandler *PredictionsHandler
	sessionHandler     *SessionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cookies := newCookieJar(opts...)
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		predictionsHandler: newPredictionsHandler(deps, cookies),
		sessionHandler:     newSessionHandler(deps, cookies),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/predictions", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.predictionsHandler.HandlePost, "predictions_post"))
		r.Get("/", MetricsMiddleware(s.predictionsHandler.HandleList, "predictions_list"))
		r.Get("/export", MetricsMiddleware(s.predictionsHandler.HandleExport, "predictions_export"))
	})
	r.Delete("/session", MetricsMiddleware(s.sessionHandler.HandleEnd, "session_end"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before committing the status, so a value that cannot
// be encoded turns into a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: "response encoding failed"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
