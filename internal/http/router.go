package httpapi

import "net/http"

// NewRouter wires the API endpoints plus the optional websocket handler.
// mw, when non-nil, wraps every route (auth middleware in production).
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler {
		handler := http.Handler(h)
		if mw != nil {
			handler = mw(handler)
		}
		return handler
	}

	mux.Handle("/api/subscriptions", wrap(svc.handleSubscriptions))
	mux.Handle("/api/subscriptions/", wrap(svc.handleSubscriptionByID))
	mux.Handle("/api/events", wrap(svc.handlePublishEvent))
	mux.Handle("/api/stats", wrap(svc.handleStats))
	mux.Handle("/api/notifications/", wrap(svc.handleNotifications))
	mux.Handle("/api/threads", wrap(svc.handleThreads))

	if wsHandler != nil {
		if mw != nil {
			mux.Handle("/ws/sessions/", mw(wsHandler))
		} else {
			mux.Handle("/ws/sessions/", wsHandler)
		}
	}

	return mux
}
