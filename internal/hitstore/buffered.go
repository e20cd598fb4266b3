package hitstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shortr-io/shortr/internal/core"
)

// FlushError hands a failed batch back to whoever drains Failed(). The
// events are no longer buffered once surrendered.
type FlushError struct {
	Events []*core.HitEvent
	Err    error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush of %d hit events failed: %v", len(e.Events), e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Buffered batches StoreHit calls in front of another HitStorage. The
// buffer flushes when it reaches size, on every interval tick, and on
// Close, so stragglers never sit around after the last hit.
type Buffered struct {
	inner    core.HitStorage
	size     int
	interval time.Duration
	logger   core.Logger

	mu  sync.Mutex
	buf []*core.HitEvent

	failed     chan *FlushError
	failMu     sync.Mutex
	failClosed bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewBuffered wraps inner with a buffer of the given size, flushed at
// least every interval. The flush goroutine runs until Close.
func NewBuffered(inner core.HitStorage, size int, interval time.Duration, logger core.Logger) *Buffered {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if size <= 0 {
		size = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	b := &Buffered{
		inner:    inner,
		size:     size,
		interval: interval,
		logger:   logger,
		buf:      make([]*core.HitEvent, 0, size),
		failed:   make(chan *FlushError, 4),
		done:     make(chan struct{}),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

func (b *Buffered) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush(context.Background())
		case <-b.done:
			return
		}
	}
}

// StoreHit buffers the event. It never fails; flush errors surface on
// the Failed channel.
func (b *Buffered) StoreHit(_ context.Context, event *core.HitEvent) error {
	b.mu.Lock()
	b.buf = append(b.buf, event)
	full := len(b.buf) >= b.size
	b.mu.Unlock()

	if full {
		b.flush(context.Background())
	}
	return nil
}

// StoreHits bypasses the buffer; callers batching on their own keep the
// underlying store's atomicity.
func (b *Buffered) StoreHits(ctx context.Context, events []*core.HitEvent) error {
	return b.inner.StoreHits(ctx, events)
}

// flush swaps the buffer out and writes it. A failed batch is handed to
// the Failed channel, or logged and dropped when nobody is draining it.
func (b *Buffered) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buf
	b.buf = make([]*core.HitEvent, 0, b.size)
	b.mu.Unlock()

	if err := b.inner.StoreHits(ctx, batch); err != nil {
		b.logger.Error("Hit buffer flush failed", map[string]interface{}{
			"error":  err,
			"events": len(batch),
		})
		b.reportFailure(&FlushError{Events: batch, Err: err})
		return
	}

	b.logger.Debug("Flushed hit buffer", map[string]interface{}{
		"events": len(batch),
	})
}

// reportFailure hands the batch to the Failed channel without ever
// blocking the flush path. Undrained or post-Close batches are dropped.
func (b *Buffered) reportFailure(fe *FlushError) {
	b.failMu.Lock()
	defer b.failMu.Unlock()
	if b.failClosed {
		b.logger.Error("Dropping failed hit batch after Close", map[string]interface{}{
			"events": len(fe.Events),
		})
		return
	}
	select {
	case b.failed <- fe:
	default:
		b.logger.Error("Dropping failed hit batch, Failed channel is full", map[string]interface{}{
			"events": len(fe.Events),
		})
	}
}

// Failed delivers batches whose flush failed. The channel closes on
// Close; drain it to avoid losing events on a flaky backend.
func (b *Buffered) Failed() <-chan *FlushError {
	return b.failed
}

func (b *Buffered) TotalHits(ctx context.Context, code string) (int64, error) {
	return b.inner.TotalHits(ctx, code)
}

func (b *Buffered) HitsByDevice(ctx context.Context, code string) (map[string]int64, error) {
	return b.inner.HitsByDevice(ctx, code)
}

func (b *Buffered) HitsByBrowser(ctx context.Context, code string) (map[string]int64, error) {
	return b.inner.HitsByBrowser(ctx, code)
}

func (b *Buffered) HitsByCountry(ctx context.Context, code string) (map[string]int64, error) {
	return b.inner.HitsByCountry(ctx, code)
}

func (b *Buffered) TopReferers(ctx context.Context, code string, limit int) ([]core.RefererCount, error) {
	return b.inner.TopReferers(ctx, code, limit)
}

func (b *Buffered) HitsOverTime(ctx context.Context, code string, days int) ([]core.DayCount, error) {
	return b.inner.HitsOverTime(ctx, code, days)
}

// Close stops the ticker, flushes whatever is left, and closes the
// underlying store.
func (b *Buffered) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.flush(context.Background())
		b.failMu.Lock()
		b.failClosed = true
		close(b.failed)
		b.failMu.Unlock()
		b.closeErr = b.inner.Close()
	})
	return b.closeErr
}
