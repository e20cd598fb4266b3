// The shortr hit worker: drains hit events from the queue into
// analytics storage and folds aggregated counters back into the URL
// store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/hitstore"
	"github.com/shortr-io/shortr/internal/logging"
	"github.com/shortr-io/shortr/internal/metrics"
	"github.com/shortr-io/shortr/internal/queue"
	"github.com/shortr-io/shortr/internal/urlstore"
	"github.com/shortr-io/shortr/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shortr-worker: %v\n", err)
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

	logger := logging.New("hitworker", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	store, err := urlstore.New(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open url store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure url schema: %w", err)
	}

	queueBackend, err := queue.New(cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer queueBackend.Close()

	hits, err := hitstore.New(cfg.HitStorage, logger)
	if err != nil {
		return fmt.Errorf("open hit storage: %w", err)
	}
	defer hits.Close()

	// A buffered store surrenders batches it could not write on its
	// error channel; the holder must drain it or the batches are
	// dropped without a trace.
	if buffered, ok := hits.(*hitstore.Buffered); ok {
		go func() {
			for fe := range buffered.Failed() {
				logger.Error("Buffered hit storage dropped a batch", map[string]interface{}{
					"events": len(fe.Events),
					"error":  fe.Err.Error(),
				})
			}
		}()
	}

	w, err := worker.New(worker.Options{
		Queue:           queueBackend,
		HitStorage:      hits,
		URLStore:        store,
		Metrics:         m,
		Logger:          logger,
		BatchSize:       cfg.Queue.BatchSize,
		BlockTimeout:    cfg.Queue.PollInterval,
		FlushInterval:   cfg.Worker.FlushInterval,
		FlushThreshold:  cfg.Worker.FlushThreshold,
		RetryDelay:      cfg.Worker.RetryDelay,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("build hit worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return w.Run(ctx)
}
