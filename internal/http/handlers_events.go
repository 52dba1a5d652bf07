package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/vigil/internal/auth"
	"github.com/mistakeknot/vigil/internal/core"
)

type publishEventResponse struct {
	EventID string `json:"event_id"`
}

func (s *Service) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var ev core.AgentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !core.ValidEventType(ev.Type) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(ev.SessionName) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	info, _ := auth.FromContext(r.Context())
	if info.Mode == auth.ModeAPIKey {
		if ev.TeamID == "" {
			ev.TeamID = info.Team
		} else if ev.TeamID != info.Team {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	s.bus.Publish(ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(publishEventResponse{EventID: ev.ID})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.bus.Stats())
}
