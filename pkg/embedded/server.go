// Package embedded provides an embeddable vigil server for in-process use.
package embedded

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mistakeknot/vigil/internal/auth"
	"github.com/mistakeknot/vigil/internal/bus"
	httpapi "github.com/mistakeknot/vigil/internal/http"
	"github.com/mistakeknot/vigil/internal/storage/sqlite"
	"github.com/mistakeknot/vigil/internal/ws"
)

// Config configures the embedded server.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// If empty, defaults to ~/.vigil/data.db
	DBPath string

	// Port is the HTTP port to listen on.
	// If 0, defaults to 7600.
	Port int

	// Host is the host to bind to.
	// If empty, defaults to localhost (127.0.0.1).
	Host string

	// Bus overrides the default bus limits when non-zero.
	Bus bus.Config

	// RequireAuth enables API key authentication loaded from the
	// environment. Off by default for in-process use.
	RequireAuth bool
}

// Server is an embedded vigil server.
type Server struct {
	cfg       Config
	store     *sqlite.Store
	resilient *sqlite.Resilient
	bus       *bus.Bus
	hub       *ws.Hub
	http      *http.Server
	started   bool
	mu        sync.Mutex
}

// New creates a new embedded vigil server.
func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".vigil", "data.db")
	}
	if cfg.Port == 0 {
		cfg.Port = 7600
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	resilient := sqlite.NewResilient(store)

	b := bus.New(cfg.Bus)
	b.SetQueue(resilient)
	b.SetThreadStore(resilient)

	hub := ws.NewHub()
	b.OnDelivered(func(s bus.DeliverySignal) {
		hub.Broadcast(s.SubscriberSession, s)
	})

	var mw func(http.Handler) http.Handler
	if cfg.RequireAuth {
		keyring, err := auth.LoadKeyringFromEnv()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load auth: %w", err)
		}
		mw = auth.Middleware(keyring)
	}

	svc := httpapi.NewService(b, resilient, resilient)
	router := httpapi.NewRouter(svc, hub.Handler(), mw)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		cfg:       cfg,
		store:     store,
		resilient: resilient,
		bus:       b,
		hub:       hub,
		http:      httpServer,
	}, nil
}

// Start starts the embedded server in a goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash - the host app should handle this
			fmt.Fprintf(os.Stderr, "vigil server error: %v\n", err)
		}
	}()

	// Wait a moment for the server to start
	time.Sleep(50 * time.Millisecond)
	return nil
}

// Stop stops the embedded server gracefully and releases the bus and
// the database.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.bus.Cleanup()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// URL returns the base URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.http.Addr)
}

// Bus returns the underlying bus for direct in-process use.
func (s *Server) Bus() *bus.Bus {
	return s.bus
}

// Queue returns the notification queue for direct access if needed.
func (s *Server) Queue() *sqlite.Resilient {
	return s.resilient
}
