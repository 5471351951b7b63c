package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"weekplanner/internal/config"
	"weekplanner/internal/hub"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/orchestrator"
)

// Failer is a simulated upstream whose outage can be toggled.
type Failer interface {
	SetFailing(bool)
}

// Server exposes the display API, the push stream, webhooks and admin
// mutations. All state lives in the orchestrator; handlers only shape
// requests and responses.
type Server struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
	hub  *hub.Hub
	mux  *http.ServeMux

	// simulated upstreams, set in mock mode only
	mocks []Failer
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, h *hub.Hub, mocks ...Failer) *Server {
	s := &Server{
		cfg:   cfg,
		orch:  orch,
		hub:   h,
		mux:   http.NewServeMux(),
		mocks: mocks,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/calendar/week/{offset}", s.handleCalendarWeek)
	s.mux.HandleFunc("GET /api/todos", s.handleTodos)

	s.mux.HandleFunc("GET /api/meals", s.handleMeals)
	s.mux.HandleFunc("PUT /api/meals/{date}", s.admin(s.handleChangeMeal))
	s.mux.HandleFunc("GET /api/meals/categories", s.handleCategories)
	s.mux.HandleFunc("POST /api/meals/categories", s.admin(s.handleCreateCategory))
	s.mux.HandleFunc("PUT /api/meals/categories/{id}", s.admin(s.handleUpdateCategory))
	s.mux.HandleFunc("DELETE /api/meals/categories/{id}", s.admin(s.handleDeleteCategory))
	s.mux.HandleFunc("POST /api/meals/categories/{id}/meals", s.admin(s.handleAddMeal))
	s.mux.HandleFunc("DELETE /api/meals/categories/{id}/meals/{meal}", s.admin(s.handleRemoveMeal))
	s.mux.HandleFunc("PUT /api/meals/weekdays", s.admin(s.handleWeekdays))
	s.mux.HandleFunc("PUT /api/meals/history-weeks", s.admin(s.handleHistoryWeeks))

	// Providers cannot authenticate; the calendar hook checks the channel token.
	s.mux.HandleFunc("POST /api/webhook/calendar", s.handleCalendarWebhook)
	s.mux.HandleFunc("POST /api/webhook/tasks", s.handleTasksWebhook)

	s.mux.HandleFunc("GET /api/events-stream", s.hub.ServeSSE)
	s.mux.HandleFunc("GET /ws", s.hub.ServeWS)

	s.mux.HandleFunc("POST /api/clear-cache", s.admin(s.handleClearCache))

	s.mux.HandleFunc("POST /api/simulate/calendar-push", s.mockOnly(s.handleSimulatePush(orchestrator.DomainCalendar)))
	s.mux.HandleFunc("POST /api/simulate/todo-push", s.mockOnly(s.handleSimulatePush(orchestrator.DomainTasks)))
	s.mux.HandleFunc("POST /api/simulate/refresh-all", s.mockOnly(s.handleSimulateRefreshAll))
	s.mux.HandleFunc("POST /api/simulate/outage", s.mockOnly(s.handleSimulateOutage))
	s.mux.HandleFunc("GET /api/simulate/status", s.mockOnly(s.handleSimulateStatus))
}

// ListenAndServe serves until ctx is cancelled, then closes push
// connections and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "mock", s.cfg.MockMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Streams only end when their subscriber is closed.
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.orch.InvalidateAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "cache cleared",
		"timestamp": time.Now().UTC(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return model.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeDomainError maps the error taxonomy to a status code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
