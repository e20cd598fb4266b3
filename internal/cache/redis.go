// Package cache implements the lookaside cache in front of the URL
// store. Three backends share the core.Cache contract: Redis for
// deployments with more than one process, an in-process map for
// development, and a null backend that disables caching entirely.
//
// Namespacing:
// The Redis backend prefixes every key ("shortr:cache:*") so the cache
// can share a database with other tenants without collisions.
//
// Failure semantics:
// Callers treat any cache error as a miss. Nothing here retries; the
// serving path degrades to the authoritative store immediately.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shortr-io/shortr/internal/core"
)

// DefaultNamespace prefixes all cache keys in Redis.
const DefaultNamespace = "shortr:cache"

// Redis is the remote cache backend.
type Redis struct {
	client    *redis.Client
	namespace string
	opTimeout time.Duration
	logger    core.Logger
}

// RedisOptions configures the Redis cache backend.
type RedisOptions struct {
	URL            string
	Namespace      string // defaults to DefaultNamespace
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
	Logger         core.Logger // optional
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrInvalidConfiguration)
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}

	redisOpt, err := redis.ParseURL(opts.URL)
	if err != nil {
		opts.Logger.Error("Failed to parse cache Redis URL", map[string]interface{}{
			"error": err,
			"url":   opts.URL,
		})
		return nil, fmt.Errorf("invalid Redis URL: %w", core.ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		opts.Logger.Error("Failed to connect to cache Redis", map[string]interface{}{
			"error": err,
			"url":   opts.URL,
		})
		return nil, fmt.Errorf("connect to cache redis: %w", core.ErrCacheUnavailable)
	}

	opts.Logger.Info("Cache connected", map[string]interface{}{
		"backend":   "redis",
		"namespace": opts.Namespace,
	})

	return &Redis{
		client:    client,
		namespace: opts.Namespace,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger,
	}, nil
}

func (r *Redis) formatKey(key string) string {
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

func (r *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// Get returns the cached value. A missing key is (value="", ok=false,
// err=nil); only I/O failures produce an error.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, r.formatKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &core.ServiceError{
			Op:   "cache.Get",
			Kind: "cache",
			Code: key,
			Err:  fmt.Errorf("%v: %w", err, core.ErrCacheUnavailable),
		}
	}
	return val, true, nil
}

// Set stores a value. A non-positive ttl stores without expiry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.formatKey(key), value, ttl).Err(); err != nil {
		return &core.ServiceError{
			Op:   "cache.Set",
			Kind: "cache",
			Code: key,
			Err:  fmt.Errorf("%v: %w", err, core.ErrCacheUnavailable),
		}
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.Del(ctx, r.formatKey(key)).Err(); err != nil {
		return &core.ServiceError{
			Op:   "cache.Delete",
			Kind: "cache",
			Code: key,
			Err:  fmt.Errorf("%v: %w", err, core.ErrCacheUnavailable),
		}
	}
	return nil
}

// Exists reports whether the key is present and unexpired.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, r.formatKey(key)).Result()
	if err != nil {
		return false, &core.ServiceError{
			Op:   "cache.Exists",
			Kind: "cache",
			Code: key,
			Err:  fmt.Errorf("%v: %w", err, core.ErrCacheUnavailable),
		}
	}
	return n > 0, nil
}

// Clear flushes the whole database. Test and admin use only.
func (r *Redis) Clear(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return &core.ServiceError{
			Op:   "cache.Clear",
			Kind: "cache",
			Err:  fmt.Errorf("%v: %w", err, core.ErrCacheUnavailable),
		}
	}
	return nil
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", core.ErrCacheUnavailable)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
