package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/storage"
)

type pendingNotificationsResponse struct {
	Notifications []core.Notification `json:"notifications"`
}

func (s *Service) handleNotifications(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/delivered"); ok {
		s.markDelivered(w, r, id)
		return
	}
	s.listPending(w, r, rest)
}

func (s *Service) listPending(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	pending, err := s.queue.Pending(r.Context(), conversationID, limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if pending == nil {
		pending = []core.Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pendingNotificationsResponse{Notifications: pending})
}

func (s *Service) markDelivered(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.queue.MarkDelivered(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
