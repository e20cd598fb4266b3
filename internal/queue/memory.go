package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shortr-io/shortr/internal/core"
)

// Memory is a single-process FIFO queue. Events are gone once consumed,
// so Ack has nothing to do; losing in-flight events on a crash is the
// accepted trade for running without Redis.
type Memory struct {
	mu     sync.Mutex
	events []*core.HitEvent
	nextID int64
	wake   chan struct{}
}

// NewMemory returns an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{wake: make(chan struct{}, 1)}
}

// Publish appends the event and assigns it a sequential message id.
func (q *Memory) Publish(_ context.Context, event *core.HitEvent) error {
	q.mu.Lock()
	stored := *event
	stored.MessageID = strconv.FormatInt(q.nextID, 10)
	q.nextID++
	q.events = append(q.events, &stored)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Consume pops up to batchSize events in publish order, waiting up to
// block for one to arrive when the queue is empty.
func (q *Memory) Consume(ctx context.Context, batchSize int, block time.Duration) ([]*core.HitEvent, error) {
	if batchSize <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			n := batchSize
			if n > len(q.events) {
				n = len(q.events)
			}
			batch := make([]*core.HitEvent, n)
			copy(batch, q.events[:n])
			q.events = q.events[n:]
			q.mu.Unlock()
			return batch, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack is a no-op; consumed events are already off the queue.
func (q *Memory) Ack(_ context.Context, _ ...string) error {
	return nil
}

// Length reports the number of unconsumed events.
func (q *Memory) Length(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.events)), nil
}

// Close is a no-op.
func (q *Memory) Close() error {
	return nil
}
