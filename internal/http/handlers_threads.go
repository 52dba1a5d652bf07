package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/vigil/internal/core"
)

type registerThreadRequest struct {
	SessionPattern string `json:"session_pattern"`
	FilePath       string `json:"file_path"`
}

type listThreadsResponse struct {
	Threads []core.ThreadRecord `json:"threads"`
}

func (s *Service) handleThreads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerThread(w, r)
	case http.MethodGet:
		s.findThreads(w, r)
	case http.MethodDelete:
		s.removeThread(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) registerThread(w http.ResponseWriter, r *http.Request) {
	var req registerThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req.SessionPattern = strings.TrimSpace(req.SessionPattern)
	req.FilePath = strings.TrimSpace(req.FilePath)
	if req.SessionPattern == "" || req.FilePath == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec := core.ThreadRecord{
		SessionPattern: req.SessionPattern,
		FilePath:       req.FilePath,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.threads.RegisterThread(r.Context(), rec); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Service) findThreads(w http.ResponseWriter, r *http.Request) {
	session := strings.TrimSpace(r.URL.Query().Get("session"))
	if session == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	threads, err := s.threads.FindThreadsForAgent(r.Context(), session)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if threads == nil {
		threads = []core.ThreadRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listThreadsResponse{Threads: threads})
}

func (s *Service) removeThread(w http.ResponseWriter, r *http.Request) {
	pattern := strings.TrimSpace(r.URL.Query().Get("session_pattern"))
	path := strings.TrimSpace(r.URL.Query().Get("file_path"))
	if pattern == "" || path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	removed, err := s.threads.RemoveThread(r.Context(), pattern, path)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !removed {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
