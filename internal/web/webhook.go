package web

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/orchestrator"
)

// handleCalendarWebhook receives Google Calendar channel notifications.
// "sync" confirms a new channel; "exists" and "not_exists" mean the calendar
// changed. The reply is always 200 so the channel stays alive.
func (s *Server) handleCalendarWebhook(w http.ResponseWriter, r *http.Request) {
	if want := s.cfg.Push.ChannelToken; want != "" {
		got := r.Header.Get("X-Goog-Channel-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			appLog.Warn("calendar webhook with bad channel token", "remote", r.RemoteAddr,
				"channel", r.Header.Get("X-Goog-Channel-ID"))
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	state := r.Header.Get("X-Goog-Resource-State")
	appLog.Debug("calendar webhook", "state", state,
		"channel", r.Header.Get("X-Goog-Channel-ID"), "resource", r.Header.Get("X-Goog-Resource-ID"))

	changed := state == "exists" || state == "not_exists"
	s.orch.HandleWebhook(r.Context(), orchestrator.DomainCalendar, changed)
	w.WriteHeader(http.StatusOK)
}

// handleTasksWebhook receives Microsoft Graph change notifications. A
// subscription handshake carries validationToken, which must be echoed as
// plain text.
func (s *Server) handleTasksWebhook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, token)
		return
	}

	var body struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil && err != io.EOF {
		appLog.Warn("tasks webhook with unreadable body", "err", err)
	}
	s.orch.HandleWebhook(r.Context(), orchestrator.DomainTasks, len(body.Value) > 0)
	w.WriteHeader(http.StatusAccepted)
}
