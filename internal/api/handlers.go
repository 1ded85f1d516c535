package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/printwarden/printwarden/internal/session"
)

// --- Session ---

type sessionStartRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Seconds <= 0 {
		writeError(w, http.StatusBadRequest, "seconds must be positive")
		return
	}
	if s.countdown.Status() == session.StatusActive {
		writeError(w, http.StatusConflict, "a session is already active")
		return
	}

	// The monitor and countdown outlive this request.
	ctx := context.Background()
	if err := s.monitor.Start(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.countdown.Start(ctx, req.Seconds)

	writeJSON(w, map[string]any{
		"session_id": s.countdown.ID(),
		"status":     s.countdown.Status(),
		"remaining":  s.countdown.Remaining(),
	})
}

func (s *Server) handleSessionExtend(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Seconds <= 0 {
		writeError(w, http.StatusBadRequest, "seconds must be positive")
		return
	}
	if s.countdown.Status() != session.StatusActive {
		writeError(w, http.StatusConflict, "no active session")
		return
	}

	s.countdown.Extend(r.Context(), req.Seconds)
	writeJSON(w, map[string]any{
		"session_id": s.countdown.ID(),
		"remaining":  s.countdown.Remaining(),
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if s.countdown.Status() != session.StatusActive {
		writeError(w, http.StatusConflict, "no active session")
		return
	}

	s.countdown.End(r.Context(), session.StatusEnded)
	s.monitor.Stop()
	s.registry.ResumeAll(r.Context(), s.adapter)

	writeJSON(w, map[string]string{"status": s.countdown.Status()})
}

// --- Recovery ---

func (s *Server) handleResumePrinters(w http.ResponseWriter, r *http.Request) {
	before := s.registry.Snapshot()
	s.registry.ResumeAll(r.Context(), s.adapter)
	writeJSON(w, map[string]any{
		"attempted":    before,
		"still_paused": s.registry.Snapshot(),
	})
}

// --- System ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"time":            time.Now().UTC().Format(time.RFC3339),
		"monitor_state":   s.monitor.State(),
		"paused_printers": s.registry.Snapshot(),
		"ws_clients":      s.wsHub.ClientCount(),
		"session": map[string]any{
			"id":        s.countdown.ID(),
			"status":    s.countdown.Status(),
			"remaining": s.countdown.Remaining(),
		},
	}

	if budget, ok := s.monitor.LastKnownBudget(); ok {
		status["last_known_budget"] = budget
	}
	if s.rules != nil {
		status["print_rules"] = s.rules.RuleCount()
	}
	if s.kill != nil {
		triggered, reason := s.kill.IsTriggered()
		status["kill_switch"] = map[string]any{
			"triggered": triggered,
			"reason":    reason,
		}
	}

	writeJSON(w, status)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
