package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/KafClaw/rpcdash/internal/timeline"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// handleStatus is the unauthenticated health check.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"version":        s.opts.Version,
		"isLogged":       s.session.LoggedIn(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"connections":    s.hub.Count(),
		"queue": map[string]any{
			"dispatching": s.bus.Running(),
			"inbound":     s.bus.InboundSize(),
			"outbound":    s.bus.OutboundSize(),
		},
	})
}

// handleLogs returns recent persisted log lines, oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.guard.CheckBearer(r.Header.Get("Authorization")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLogLimit)
	}

	events := []timeline.TimelineEvent{}
	if s.timeline != nil {
		recent, err := s.timeline.Recent(limit)
		if err != nil {
			slog.Error("Read timeline failed", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		events = append(events, recent...)
	}
	json.NewEncoder(w).Encode(events)
}
