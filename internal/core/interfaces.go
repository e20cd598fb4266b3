// Package core defines the shared contracts of the shortener: the models
// that cross component boundaries, the backend interfaces implemented by
// the cache, queue, hit-storage and URL-store packages, and the sentinel
// errors every layer classifies failures with.
package core

import (
	"context"
	"time"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// Cache is the key/value lookaside used to serve resolves without touching
// the authoritative store. A miss is (value="", ok=false, err=nil); errors
// are reported separately so callers can degrade to the store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Clear wipes the whole cache. Test and admin use only.
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Queue carries hit events from the serving path to the workers.
// Consumed events carry the backend-assigned MessageID used for Ack.
type Queue interface {
	Publish(ctx context.Context, event *HitEvent) error
	// Consume returns up to batchSize events, blocking up to block when the
	// queue is empty. An empty slice with a nil error means a quiet queue.
	Consume(ctx context.Context, batchSize int, block time.Duration) ([]*HitEvent, error)
	// Ack marks messages as processed. Acking an already-acked or unknown
	// id is a no-op.
	Ack(ctx context.Context, ids ...string) error
	Length(ctx context.Context) (int64, error)
	Close() error
}

// HitStorage is the analytical store for individual hit events.
type HitStorage interface {
	StoreHit(ctx context.Context, event *HitEvent) error
	// StoreHits persists a batch atomically: all events or none.
	StoreHits(ctx context.Context, events []*HitEvent) error
	TotalHits(ctx context.Context, code string) (int64, error)
	HitsByDevice(ctx context.Context, code string) (map[string]int64, error)
	HitsByBrowser(ctx context.Context, code string) (map[string]int64, error)
	HitsByCountry(ctx context.Context, code string) (map[string]int64, error)
	TopReferers(ctx context.Context, code string, limit int) ([]RefererCount, error)
	HitsOverTime(ctx context.Context, code string, days int) ([]DayCount, error)
	Close() error
}

// URLStore is the authoritative, transactional home of URL records.
type URLStore interface {
	// Insert creates a placeholder record with no short code and returns it
	// with the store-minted id filled in.
	Insert(ctx context.Context, longURL string) (*URLRecord, error)
	AssignCode(ctx context.Context, id int64, code string) error
	// GetByCode returns the active record for code, or ErrNotFound.
	// Soft-deleted records are invisible here.
	GetByCode(ctx context.Context, code string) (*URLRecord, error)
	// Deactivate soft-deletes the record. The row and its counters are kept.
	Deactivate(ctx context.Context, code string) error
	// IncrementHits applies all deltas in a single transaction.
	IncrementHits(ctx context.Context, deltas map[string]int64) error
	// CodeExists reports whether code was ever issued, active or not.
	// Codes are never reused.
	CodeExists(ctx context.Context, code string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
