package hitstore

import (
	"fmt"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

// New builds the hit storage backend named by the configuration,
// wrapped in a buffer when one is asked for.
func New(cfg config.HitStorageConfig, logger core.Logger) (core.HitStorage, error) {
	var (
		store core.HitStorage
		err   error
	)
	switch cfg.Backend {
	case config.HitStoreRow:
		store, err = NewRowstore(cfg.Target, logger)
	case config.HitStoreColumn:
		store, err = NewColumnstore(cfg.Target, logger)
	default:
		return nil, &core.ServiceError{
			Op:      "hitstore.New",
			Kind:    "hit_storage",
			Message: fmt.Sprintf("unknown hit storage backend %q", cfg.Backend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if err != nil {
		return nil, err
	}

	if cfg.Buffered {
		return NewBuffered(store, cfg.BufferSize, cfg.FlushInterval, logger), nil
	}
	return store, nil
}
