package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/vigil/internal/auth"
	"github.com/mistakeknot/vigil/internal/bus"
	"github.com/mistakeknot/vigil/internal/config"
	httpapi "github.com/mistakeknot/vigil/internal/http"
	"github.com/mistakeknot/vigil/internal/log"
	"github.com/mistakeknot/vigil/internal/server"
	"github.com/mistakeknot/vigil/internal/storage/sqlite"
	"github.com/mistakeknot/vigil/internal/ws"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dbPath     string
		socketPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event bus server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if socketPath != "" {
				cfg.SocketPath = socketPath
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "vigil.yaml", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (overrides config)")
	return cmd
}

func runServe(cfg config.Config) error {
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "vigil"})
	logger := log.With("serve")

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	resilient := sqlite.NewResilient(store)

	keyring, err := auth.LoadKeyring(cfg.KeysFile)
	if err != nil {
		return err
	}
	// Config can tighten the keys-file policy, never loosen it.
	if !cfg.AllowLocalhostWithoutAuth {
		keyring.AllowLocalhostWithoutAuth = false
	}

	b := bus.New(bus.Config{
		MaxPerSession: cfg.Bus.MaxPerSession,
		MaxTotal:      cfg.Bus.MaxTotal,
		DefaultTTL:    cfg.Bus.DefaultTTL.Std(),
		MaxTTL:        cfg.Bus.MaxTTL.Std(),
		SweepInterval: cfg.Bus.SweepInterval.Std(),
	})
	defer b.Cleanup()
	b.SetQueue(resilient)
	b.SetThreadStore(resilient)

	hub := ws.NewHub()
	b.OnDelivered(func(s bus.DeliverySignal) {
		hub.Broadcast(s.SubscriberSession, s)
	})

	sweeper := sqlite.NewSweeper(resilient, cfg.Queue.PurgeInterval.Std(), cfg.Queue.Retention.Std())
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	svc := httpapi.NewService(b, resilient, resilient)
	router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(keyring))

	srv, err := server.New(server.Config{
		Addr:       cfg.Addr,
		SocketPath: cfg.SocketPath,
		Handler:    router,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
