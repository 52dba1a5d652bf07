package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub fans delivery signals out to websocket observers. Observers attach to
// a subscriber session name, or to "*" to receive every signal.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/ws/sessions/")
		session := strings.Trim(path, "/")
		if session == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		h.add(session, conn)
		defer h.remove(session, conn)

		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

type connEntry struct {
	conn    *websocket.Conn
	session string
}

// Broadcast sends event to every observer of session plus wildcard observers.
func (h *Hub) Broadcast(session string, event any) {
	entries := h.snapshot(session)
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, e.conn, event)
		cancel()
		if err != nil {
			go func(e connEntry) {
				e.conn.Close(websocket.StatusGoingAway, "write error")
				h.remove(e.session, e.conn)
			}(e)
		}
	}
}

func (h *Hub) snapshot(session string) []connEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []connEntry
	for conn := range h.conns[session] {
		out = append(out, connEntry{conn: conn, session: session})
	}
	if session != "*" {
		for conn := range h.conns["*"] {
			out = append(out, connEntry{conn: conn, session: "*"})
		}
	}
	return out
}

func (h *Hub) add(session string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perSession, ok := h.conns[session]
	if !ok {
		perSession = make(map[*websocket.Conn]struct{})
		h.conns[session] = perSession
	}
	perSession[conn] = struct{}{}
}

func (h *Hub) remove(session string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perSession, ok := h.conns[session]
	if !ok {
		return
	}
	delete(perSession, conn)
	if len(perSession) == 0 {
		delete(h.conns, session)
	}
}
