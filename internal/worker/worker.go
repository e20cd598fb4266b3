// Package worker drains the hit queue. Each cycle consumes a batch,
// stores the raw events in hit storage, folds them into per-code
// counters, flushes the counters to the URL store when due, and only
// then acks. Failing any of those steps leaves the batch unacked so the
// queue redelivers it; the counters are approximate by contract and
// deduplication is out of scope.
//
// A worker is one goroutine. Scaling out means more worker processes
// joining the same consumer group.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shortr-io/shortr/internal/core"
	"github.com/shortr-io/shortr/internal/metrics"
)

// Options wires a HitWorker. Queue, HitStorage and URLStore are
// required.
type Options struct {
	Queue      core.Queue
	HitStorage core.HitStorage
	URLStore   core.URLStore
	Metrics    *metrics.Metrics
	Logger     core.Logger

	// BatchSize and BlockTimeout shape each consume call.
	BatchSize    int
	BlockTimeout time.Duration

	// Counters flush when FlushInterval has passed since the last flush
	// or when FlushThreshold distinct codes have accumulated, whichever
	// comes first.
	FlushInterval  time.Duration
	FlushThreshold int

	// RetryDelay is slept after a failed consume or store before the
	// next attempt.
	RetryDelay time.Duration

	// ShutdownTimeout bounds the final counter flush. It also caps each
	// batch's processing time, so a stuck backend cannot hold a batch
	// (and its ack) hostage forever.
	ShutdownTimeout time.Duration
}

// HitWorker is the queue consumer. Not safe for concurrent Run calls.
type HitWorker struct {
	queue   core.Queue
	hits    core.HitStorage
	store   core.URLStore
	metrics *metrics.Metrics
	logger  core.Logger

	batchSize       int
	block           time.Duration
	flushInterval   time.Duration
	flushThreshold  int
	retryDelay      time.Duration
	shutdownTimeout time.Duration

	counters  map[string]int64
	lastFlush time.Time
}

// New validates the wiring and returns a worker ready to Run.
func New(opts Options) (*HitWorker, error) {
	if opts.Queue == nil || opts.HitStorage == nil || opts.URLStore == nil {
		return nil, fmt.Errorf("queue, hit storage and URL store are required: %w", core.ErrInvalidConfiguration)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = 50
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &HitWorker{
		queue:           opts.Queue,
		hits:            opts.HitStorage,
		store:           opts.URLStore,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		batchSize:       opts.BatchSize,
		block:           opts.BlockTimeout,
		flushInterval:   opts.FlushInterval,
		flushThreshold:  opts.FlushThreshold,
		retryDelay:      opts.RetryDelay,
		shutdownTimeout: opts.ShutdownTimeout,
		counters:        make(map[string]int64),
	}, nil
}

// Run consumes until ctx is cancelled, then flushes the remaining
// counters and returns. The error is the final flush's, if any.
func (w *HitWorker) Run(ctx context.Context) error {
	w.logger.Info("Hit worker started", map[string]interface{}{
		"batch_size":      w.batchSize,
		"flush_interval":  w.flushInterval.String(),
		"flush_threshold": w.flushThreshold,
	})
	w.lastFlush = time.Now()

	for {
		if ctx.Err() != nil {
			return w.shutdown()
		}
		w.cycle(ctx)
	}
}

// cycle is one consume-store-count-flush-ack pass. The consume waits on
// the run context so a stop interrupts it; everything after runs on a
// detached deadline so an in-flight batch finishes (and acks) even when
// the stop arrives mid-batch.
func (w *HitWorker) cycle(ctx context.Context) {
	events, err := w.queue.Consume(ctx, w.batchSize, w.block)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Queue consume failed", map[string]interface{}{
			"error": err,
		})
		w.sleep(ctx, w.retryDelay)
		return
	}

	batchCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	w.observeQueueDepth(batchCtx)

	if len(events) == 0 {
		// Idle streams still owe a time-based counter flush.
		if w.flushDue() {
			w.flushCounters(batchCtx)
		}
		return
	}

	if err := w.hits.StoreHits(batchCtx, events); err != nil {
		w.metrics.BatchesProcessed.WithLabelValues(metrics.ResultError).Inc()
		w.logger.Error("Failed to store hit batch, leaving it unacked", map[string]interface{}{
			"error":  fmt.Errorf("%v: %w", err, core.ErrStorageBackendFailure),
			"events": len(events),
		})
		w.sleep(ctx, w.retryDelay)
		return
	}
	w.metrics.EventsStored.Add(float64(len(events)))

	for _, event := range events {
		w.counters[event.ShortCode]++
	}

	if w.flushDue() {
		if err := w.flushCounters(batchCtx); err != nil {
			// Counters stay merged; the unacked batch redelivers.
			return
		}
	}

	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.MessageID)
	}
	if err := w.queue.Ack(batchCtx, ids...); err != nil {
		w.logger.Error("Failed to ack batch, expect redelivery", map[string]interface{}{
			"error":  err,
			"events": len(ids),
		})
		return
	}

	w.metrics.BatchesProcessed.WithLabelValues(metrics.ResultOK).Inc()
}

// flushDue reports whether the counters should be written out. The
// interval check rides Go's monotonic clock, so wall clock jumps cannot
// stall it.
func (w *HitWorker) flushDue() bool {
	if len(w.counters) == 0 {
		return false
	}
	return len(w.counters) >= w.flushThreshold || time.Since(w.lastFlush) >= w.flushInterval
}

// flushCounters writes the merged deltas in one transaction. On failure
// the counters are kept for the next attempt.
func (w *HitWorker) flushCounters(ctx context.Context) error {
	if len(w.counters) == 0 {
		w.lastFlush = time.Now()
		return nil
	}

	codes := len(w.counters)
	if err := w.store.IncrementHits(ctx, w.counters); err != nil {
		w.metrics.CounterFlushes.WithLabelValues(metrics.ResultError).Inc()
		w.logger.Error("Counter flush failed, keeping counters", map[string]interface{}{
			"error": err,
			"codes": codes,
		})
		return err
	}

	// Log with the pre-clear count; the map is about to be reset.
	w.logger.Info("Flushed hit counters", map[string]interface{}{
		"codes": codes,
	})
	w.metrics.CounterFlushes.WithLabelValues(metrics.ResultOK).Inc()
	w.counters = make(map[string]int64)
	w.lastFlush = time.Now()
	return nil
}

// shutdown force-flushes whatever the counters hold, bounded by the
// shutdown timeout.
func (w *HitWorker) shutdown() error {
	w.logger.Info("Hit worker stopping", map[string]interface{}{
		"pending_codes": len(w.counters),
	})

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	if err := w.flushCounters(ctx); err != nil {
		return err
	}
	w.logger.Info("Hit worker stopped", nil)
	return nil
}

func (w *HitWorker) observeQueueDepth(ctx context.Context) {
	n, err := w.queue.Length(ctx)
	if err != nil {
		w.logger.Debug("Queue length unavailable", map[string]interface{}{
			"error": err,
		})
		return
	}
	w.metrics.QueueDepth.Set(float64(n))
}

func (w *HitWorker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
