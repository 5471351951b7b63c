package web

import (
	"net/http"
	"time"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/orchestrator"
)

// mockOnly rejects simulation requests unless mock mode is on.
func (s *Server) mockOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.MockMode {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "simulation endpoints are only available in mock mode",
				"hint":  "set mock_mode: true or WEEKPLANNER_MOCK_MODE=true",
			})
			return
		}
		next(w, r)
	}
}

func simulated(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSimulatePush(d orchestrator.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appLog.Info("simulating push notification", "domain", d)
		s.orch.HandleWebhook(r.Context(), d, true)
		simulated(w, string(d)+" push notification simulated")
	}
}

func (s *Server) handleSimulateRefreshAll(w http.ResponseWriter, r *http.Request) {
	s.orch.InvalidateAll(r.Context())
	simulated(w, "all mock data regenerated")
}

// handleSimulateOutage makes every simulated upstream fail (or recover), to
// exercise the stale fallback.
func (s *Server) handleSimulateOutage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Failing bool `json:"failing"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	for _, m := range s.mocks {
		m.SetFailing(req.Failing)
	}
	appLog.Info("simulated outage toggled", "failing", req.Failing, "sources", len(s.mocks))
	simulated(w, "outage updated")
}

func (s *Server) handleSimulateStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.orch.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"mockMode":       true,
		"calendarCached": st.Calendar == "fresh",
		"todoCached":     st.Tasks == "fresh",
		"timestamp":      st.Timestamp,
	})
}
