package queue

import (
	"fmt"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

// New builds the queue backend named by the configuration.
func New(cfg config.QueueConfig, logger core.Logger) (core.Queue, error) {
	switch cfg.Backend {
	case config.QueueStreams:
		return NewRedisStreams(RedisStreamsOptions{
			URL:            cfg.URL,
			Stream:         cfg.StreamName,
			ConsumerGroup:  cfg.ConsumerGroup,
			ConnectTimeout: cfg.ConnectTimeout,
			OpTimeout:      cfg.OpTimeout,
			ReclaimMinIdle: cfg.ReclaimMinIdle,
			Logger:         logger,
		})
	case config.QueueMemory:
		return NewMemory(), nil
	default:
		return nil, &core.ServiceError{
			Op:      "queue.New",
			Kind:    "queue",
			Message: fmt.Sprintf("unknown queue backend %q", cfg.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}
