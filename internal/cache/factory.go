package cache

import (
	"fmt"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

// New builds the configured cache backend.
func New(cfg config.CacheConfig, logger core.Logger) (core.Cache, error) {
	switch cfg.Backend {
	case config.CacheRemote:
		return NewRedis(RedisOptions{
			URL:            cfg.URL,
			ConnectTimeout: cfg.ConnectTimeout,
			OpTimeout:      cfg.OpTimeout,
			Logger:         logger,
		})
	case config.CacheMemory:
		return NewMemory(), nil
	case config.CacheNull:
		return NewNull(), nil
	default:
		return nil, &core.ServiceError{
			Op:      "cache.New",
			Kind:    "cache",
			Message: fmt.Sprintf("unknown backend: %q", cfg.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}
