package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/guido-cesarano/tripsync/pkg/config"
	"github.com/guido-cesarano/tripsync/pkg/connectivity"
	"github.com/guido-cesarano/tripsync/pkg/kvstore"
	"github.com/guido-cesarano/tripsync/pkg/logger"
	"github.com/guido-cesarano/tripsync/pkg/offline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline coordination daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	log := logger.With("daemon")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	source := connectivity.NewInterfaceSource(cfg.Connectivity.PollInterval)

	coord := offline.New(store, source,
		offline.WithQueueOptions(
			offline.WithDebounce(cfg.Queue.DrainDebounce),
			offline.WithBackoff(cfg.Queue.BackoffBase, cfg.Queue.BackoffCap),
		),
	)
	if err := coord.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	defer coord.Dispose()

	// Periodic jobs: force a connectivity recheck so a missed interface
	// event cannot leave the status stale, and record staleness for
	// operators.
	c := cron.New()
	recheckSpec := fmt.Sprintf("@every %s", cfg.Connectivity.PollInterval)
	if _, err := c.AddFunc(recheckSpec, func() {
		if err := coord.Recheck(ctx); err != nil {
			log.Warn().Err(err).Msg("Connectivity recheck failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register recheck job: %w", err)
	}
	if _, err := c.AddFunc("@hourly", func() {
		if d, ok := coord.Staleness(); ok {
			log.Info().Dur("staleness", d).Bool("stale", d > cfg.Cache.MaxAge).Msg("Cache staleness")
		} else {
			log.Warn().Msg("Device has never been online; all cached data is stale")
		}
	}); err != nil {
		return fmt.Errorf("failed to register staleness job: %w", err)
	}
	c.Start()
	defer c.Stop()

	// Prometheus metrics on a dedicated listener.
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	apiSrv := &http.Server{Addr: cfg.Server.Addr, Handler: newRouter(coord, cfg.Cache.MaxAge)}
	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("API server listening")
		serverDone <- apiSrv.ListenAndServe()
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
	}
	signal.Stop(sigChan)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server shutdown error")
	}

	log.Info().Msg("Daemon stopped")
	return nil
}

// openStore builds the configured key-value backend.
func openStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		return kvstore.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.Namespace), nil
	case config.StoreBadger:
		return kvstore.NewBadgerStore(kvstore.BadgerOptions{
			Dir:       cfg.Store.BadgerDir,
			Namespace: cfg.Store.Namespace,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
