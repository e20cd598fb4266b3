// Package queue carries hit events from the serving path to the hit
// workers. The streams backend rides Redis Streams with consumer
// groups: publishes are XADD, consumes are XREADGROUP, acknowledgements
// are XACK, and messages left pending by a dead consumer are reclaimed
// with XAUTOCLAIM once they sit idle long enough. The memory backend is
// a single-process FIFO with no durability.
//
// Wire format:
// One stream field, "data", holding the JSON-encoded hit event. Message
// ids are backend-assigned and treated as opaque strings.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/shortr-io/shortr/internal/core"
)

// RedisStreams is the durable queue backend.
type RedisStreams struct {
	client         *redis.Client
	stream         string
	group          string
	consumer       string
	opTimeout      time.Duration
	reclaimMinIdle time.Duration
	logger         core.Logger

	mu         sync.Mutex
	groupReady bool
}

// RedisStreamsOptions configures the streams backend.
type RedisStreamsOptions struct {
	URL           string
	Stream        string
	ConsumerGroup string
	// Consumer names this process inside the group. Generated as
	// worker-<hostname>-<uuid8> when empty.
	Consumer       string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
	ReclaimMinIdle time.Duration
	Logger         core.Logger // optional
}

// NewRedisStreams connects to Redis, verifies the connection, and
// creates the stream and consumer group if they do not exist yet.
func NewRedisStreams(opts RedisStreamsOptions) (*RedisStreams, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrInvalidConfiguration)
	}
	if opts.Stream == "" || opts.ConsumerGroup == "" {
		return nil, fmt.Errorf("stream and consumer group are required: %w", core.ErrInvalidConfiguration)
	}
	if opts.Consumer == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "unknown"
		}
		opts.Consumer = fmt.Sprintf("worker-%s-%s", hostname, uuid.NewString()[:8])
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}

	redisOpt, err := redis.ParseURL(opts.URL)
	if err != nil {
		opts.Logger.Error("Failed to parse queue Redis URL", map[string]interface{}{
			"error": err,
			"url":   opts.URL,
		})
		return nil, fmt.Errorf("invalid Redis URL: %w", core.ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		opts.Logger.Error("Failed to connect to queue Redis", map[string]interface{}{
			"error": err,
			"url":   opts.URL,
		})
		return nil, fmt.Errorf("connect to queue redis: %w", core.ErrQueueUnavailable)
	}

	q := &RedisStreams{
		client:         client,
		stream:         opts.Stream,
		group:          opts.ConsumerGroup,
		consumer:       opts.Consumer,
		opTimeout:      opts.OpTimeout,
		reclaimMinIdle: opts.ReclaimMinIdle,
		logger:         opts.Logger,
	}

	// Best effort here; consumers retry before every read.
	if err := q.ensureGroup(ctx); err != nil {
		q.logger.Warn("Consumer group not created yet", map[string]interface{}{
			"error":  err,
			"stream": q.stream,
			"group":  q.group,
		})
	}

	q.logger.Info("Queue connected", map[string]interface{}{
		"backend":  "streams",
		"stream":   q.stream,
		"group":    q.group,
		"consumer": q.consumer,
	})

	return q, nil
}

// ensureGroup creates the stream and group on first use. An existing
// group (BUSYGROUP) is fine.
func (q *RedisStreams) ensureGroup(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.groupReady {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	q.groupReady = true
	return nil
}

func (q *RedisStreams) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.opTimeout)
}

// Publish appends one event to the stream.
func (q *RedisStreams) Publish(ctx context.Context, event *core.HitEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return &core.ServiceError{
			Op:   "queue.Publish",
			Kind: "queue",
			Err:  fmt.Errorf("encode event: %w", err),
		}
	}

	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"data": data},
	}).Err()
	if err != nil {
		return &core.ServiceError{
			Op:   "queue.Publish",
			Kind: "queue",
			Code: event.ShortCode,
			Err:  fmt.Errorf("%v: %w", err, core.ErrQueueUnavailable),
		}
	}
	return nil
}

// Consume returns up to batchSize events. Messages pending for a dead
// consumer are claimed first; otherwise new entries are read, blocking
// up to block when the stream is quiet.
func (q *RedisStreams) Consume(ctx context.Context, batchSize int, block time.Duration) ([]*core.HitEvent, error) {
	if err := q.ensureGroup(ctx); err != nil {
		return nil, &core.ServiceError{
			Op:   "queue.Consume",
			Kind: "queue",
			Err:  fmt.Errorf("%v: %w", err, core.ErrQueueUnavailable),
		}
	}

	if claimed := q.claimStale(ctx, batchSize); len(claimed) > 0 {
		return claimed, nil
	}

	if block < 0 {
		block = 0
	}
	// The read deadline must outlast the blocking window
	readCtx, cancel := context.WithTimeout(ctx, block+q.opTimeout)
	defer cancel()

	xblock := block
	if xblock == 0 {
		xblock = -1 // do not block at all
	}
	streams, err := q.client.XReadGroup(readCtx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(batchSize),
		Block:    xblock,
	}).Result()
	if err == redis.Nil {
		return nil, nil // quiet stream
	}
	if err != nil {
		return nil, &core.ServiceError{
			Op:   "queue.Consume",
			Kind: "queue",
			Err:  fmt.Errorf("%v: %w", err, core.ErrQueueUnavailable),
		}
	}

	var events []*core.HitEvent
	for _, s := range streams {
		events = append(events, q.decodeBatch(ctx, s.Messages)...)
	}
	return events, nil
}

// claimStale transfers messages whose consumer stopped acking. Errors
// are logged, never fatal: a failed claim just delays redelivery.
func (q *RedisStreams) claimStale(ctx context.Context, count int) []*core.HitEvent {
	if q.reclaimMinIdle <= 0 {
		return nil
	}

	claimCtx, cancel := q.opCtx(ctx)
	defer cancel()

	msgs, _, err := q.client.XAutoClaim(claimCtx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.reclaimMinIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil {
		if err != redis.Nil {
			q.logger.Warn("Failed to claim stale messages", map[string]interface{}{
				"error":  err,
				"stream": q.stream,
				"group":  q.group,
			})
		}
		return nil
	}
	return q.decodeBatch(ctx, msgs)
}

// decodeBatch unmarshals stream messages. A message that cannot decode
// is acked and dropped with a loud log; redelivering it forever would
// wedge the group.
func (q *RedisStreams) decodeBatch(ctx context.Context, msgs []redis.XMessage) []*core.HitEvent {
	events := make([]*core.HitEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			q.dropPoison(ctx, msg.ID, fmt.Errorf("missing data field"))
			continue
		}
		var event core.HitEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			q.dropPoison(ctx, msg.ID, err)
			continue
		}
		event.MessageID = msg.ID
		events = append(events, &event)
	}
	return events
}

func (q *RedisStreams) dropPoison(ctx context.Context, id string, err error) {
	q.logger.Error("Dropping undecodable queue message", map[string]interface{}{
		"error":      err,
		"message_id": id,
		"stream":     q.stream,
	})
	ackCtx, cancel := q.opCtx(ctx)
	defer cancel()
	if ackErr := q.client.XAck(ackCtx, q.stream, q.group, id).Err(); ackErr != nil {
		q.logger.Error("Failed to ack poison message", map[string]interface{}{
			"error":      ackErr,
			"message_id": id,
		})
	}
}

// Ack removes messages from the pending list. Redis makes this
// idempotent: acking an unknown or already-acked id is a no-op.
func (q *RedisStreams) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	if err := q.client.XAck(ctx, q.stream, q.group, ids...).Err(); err != nil {
		return &core.ServiceError{
			Op:   "queue.Ack",
			Kind: "queue",
			Err:  fmt.Errorf("%v: %w", err, core.ErrQueueUnavailable),
		}
	}
	return nil
}

// Length returns the stream length. Acked entries still count until the
// stream is trimmed, so this is an upper bound on the backlog.
func (q *RedisStreams) Length(ctx context.Context) (int64, error) {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	n, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return 0, &core.ServiceError{
			Op:   "queue.Length",
			Kind: "queue",
			Err:  fmt.Errorf("%v: %w", err, core.ErrQueueUnavailable),
		}
	}
	return n, nil
}

// Consumer returns this process's name within the consumer group.
func (q *RedisStreams) Consumer() string {
	return q.consumer
}

// Close releases the connection pool.
func (q *RedisStreams) Close() error {
	return q.client.Close()
}
