package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/vigil/internal/auth"
	"github.com/mistakeknot/vigil/internal/bus"
	"github.com/mistakeknot/vigil/internal/core"
)

type createSubscriptionRequest struct {
	EventTypes        []core.EventType        `json:"event_types"`
	Filter            core.SubscriptionFilter `json:"filter"`
	SubscriberSession string                  `json:"subscriber_session"`
	OneShot           *bool                   `json:"one_shot,omitempty"`
	TTLSeconds        *int64                  `json:"ttl_seconds,omitempty"`
	MessageTemplate   string                  `json:"message_template,omitempty"`
}

type listSubscriptionsResponse struct {
	Subscriptions []core.Subscription `json:"subscriptions"`
}

func (s *Service) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSubscriptions(w, r)
	case http.MethodPost:
		s.createSubscription(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) handleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
	id = strings.Trim(id, "/")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSubscription(w, r, id)
	case http.MethodDelete:
		s.deleteSubscription(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	info, _ := auth.FromContext(r.Context())
	if info.Mode == auth.ModeAPIKey && req.Filter.TeamID != info.Team {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	input := bus.SubscribeInput{
		EventTypes:        req.EventTypes,
		Filter:            req.Filter,
		SubscriberSession: strings.TrimSpace(req.SubscriberSession),
		OneShot:           req.OneShot,
		MessageTemplate:   req.MessageTemplate,
	}
	if req.TTLSeconds != nil {
		ttl := time.Duration(*req.TTLSeconds) * time.Second
		input.TTL = &ttl
	}

	sub, err := s.bus.Subscribe(input)
	if err != nil {
		switch {
		case errors.Is(err, bus.ErrLimitExceeded):
			w.WriteHeader(http.StatusTooManyRequests)
		case errors.Is(err, bus.ErrBusClosed):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sub)
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	session := strings.TrimSpace(r.URL.Query().Get("session"))
	subs := s.bus.ListSubscriptions(session)

	info, _ := auth.FromContext(r.Context())
	if info.Mode == auth.ModeAPIKey {
		scoped := subs[:0]
		for _, sub := range subs {
			if sub.Filter.TeamID == info.Team {
				scoped = append(scoped, sub)
			}
		}
		subs = scoped
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listSubscriptionsResponse{Subscriptions: subs})
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request, id string) {
	sub, ok := s.bus.GetSubscription(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	info, _ := auth.FromContext(r.Context())
	if info.Mode == auth.ModeAPIKey && sub.Filter.TeamID != info.Team {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sub)
}

func (s *Service) deleteSubscription(w http.ResponseWriter, r *http.Request, id string) {
	info, _ := auth.FromContext(r.Context())
	if info.Mode == auth.ModeAPIKey {
		sub, ok := s.bus.GetSubscription(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if sub.Filter.TeamID != info.Team {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}
	if !s.bus.Unsubscribe(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
