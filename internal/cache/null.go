package cache

import (
	"context"
	"time"
)

// Null disables caching: every read misses and writes vanish. Used to
// benchmark the serving path or run without cache infrastructure.
type Null struct{}

// NewNull creates the null cache backend.
func NewNull() *Null { return &Null{} }

func (Null) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }

func (Null) Set(ctx context.Context, key, value string, ttl time.Duration) error { return nil }

func (Null) Delete(ctx context.Context, key string) error { return nil }

func (Null) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (Null) Clear(ctx context.Context) error { return nil }

func (Null) Ping(ctx context.Context) error { return nil }

func (Null) Close() error { return nil }
