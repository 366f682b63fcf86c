package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/api"
	"github.com/warp/actuals-engine/backend"
	"github.com/warp/actuals-engine/config"
	"github.com/warp/actuals-engine/logging"
	"github.com/warp/actuals-engine/matching"
	"github.com/warp/actuals-engine/store/sqlite"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().String("db", "./data/actuals.db", `SQLite database path (":memory:" for in-memory)`)
	cmd.Flags().String("backend", "", "Base URL of a remote persistence API; entries and holidays are stored there instead of SQLite")
	_ = a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = a.v.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	cmd.PreRunE = bindBackendFlag(a, "backend")
	return cmd
}

// serve starts the server and blocks until SIGINT/SIGTERM, then drains
// active requests for up to 30s.
func (a *app) serve(ctx context.Context) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Env)
	defer log.Sync()

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var matcher actuals.Matcher
	if c := matching.FromConfig(ctx, cfg.Matching, log.Named("matching")); c != nil {
		matcher = c
	} else {
		log.Info("matching oracle not configured, allocation previews disabled")
	}

	handler := api.NewHandler(store, matcher, log)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// openStore picks the persistence behind the API: the remote service at
// backend.base_url when set, the SQLite database otherwise.
func openStore(cfg *config.Config, log *zap.Logger) (api.Store, func() error, error) {
	if cfg.Backend.BaseURL != "" {
		log.Info("persisting through remote backend", zap.String("backend", cfg.Backend.BaseURL))
		client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, backend.WithLogger(log.Named("backend")))
		return client, func() error { return nil }, nil
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("persisting to sqlite", zap.String("db", cfg.DBPath))
	return store, store.Close, nil
}
