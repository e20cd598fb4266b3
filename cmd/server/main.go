// The shortr API server: the management API under /api/v1/urls plus
// the public redirect hot path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shortr-io/shortr/internal/cache"
	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
	"github.com/shortr-io/shortr/internal/hitstore"
	"github.com/shortr-io/shortr/internal/logging"
	"github.com/shortr-io/shortr/internal/metrics"
	"github.com/shortr-io/shortr/internal/queue"
	"github.com/shortr-io/shortr/internal/server"
	"github.com/shortr-io/shortr/internal/service"
	"github.com/shortr-io/shortr/internal/shortcode"
	"github.com/shortr-io/shortr/internal/urlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shortr-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New("api", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	store, err := urlstore.New(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open url store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure url schema: %w", err)
	}

	cacheBackend, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cacheBackend.Close()

	queueBackend, err := queue.New(cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer queueBackend.Close()

	strategy, err := shortcode.New(cfg.ShortCode, store)
	if err != nil {
		return fmt.Errorf("build short code strategy: %w", err)
	}

	// The API only reads hit storage, for the stats analytics block, so
	// the buffered write wrapper is never applied here. A missing
	// analytics backend degrades stats instead of blocking startup.
	var hits core.HitStorage
	hitCfg := cfg.HitStorage
	hitCfg.Buffered = false
	if hs, err := hitstore.New(hitCfg, logger); err != nil {
		logger.Warn("Hit storage unavailable, stats analytics disabled", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		hits = hs
		defer hs.Close()
	}

	svc, err := service.New(service.Options{
		Store:      store,
		Cache:      cacheBackend,
		Queue:      queueBackend,
		Strategy:   strategy,
		HitStorage: hits,
		Metrics:    m,
		Logger:     logger,
		CacheTTL:   cfg.Cache.TTL,
	})
	if err != nil {
		return fmt.Errorf("build url service: %w", err)
	}

	srv, err := server.New(cfg, svc, m, logger)
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		// Listener failed before any signal arrived.
		return err
	case sig := <-stop:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return <-errCh
}
