package hitstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/shortr-io/shortr/internal/core"
)

const rowstoreSchema = `
CREATE TABLE IF NOT EXISTS url_hits (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	short_code  TEXT    NOT NULL,
	timestamp   INTEGER NOT NULL,
	ip_address  TEXT    NOT NULL DEFAULT '',
	user_agent  TEXT    NOT NULL DEFAULT '',
	referer     TEXT    NOT NULL DEFAULT '',
	country     TEXT    NOT NULL DEFAULT '',
	device_type TEXT    NOT NULL DEFAULT '',
	browser     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_url_hits_code ON url_hits (short_code);
CREATE INDEX IF NOT EXISTS idx_url_hits_timestamp ON url_hits (timestamp);
`

const rowstoreInsert = `
INSERT INTO url_hits (short_code, timestamp, ip_address, user_agent, referer, country, device_type, browser)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Rowstore keeps hits in a SQLite table. Timestamps are stored as unix
// seconds so day bucketing works the same under every driver.
type Rowstore struct {
	db     *sqlx.DB
	logger core.Logger
}

// NewRowstore opens (or creates) the hits database at path and ensures
// the schema exists.
func NewRowstore(path string, logger core.Logger) (*Rowstore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if path == "" {
		return nil, fmt.Errorf("rowstore path is required: %w", core.ErrInvalidConfiguration)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		logger.Error("Failed to open hits database", map[string]interface{}{
			"error": err,
			"path":  path,
		})
		return nil, storageErr("hitstore.NewRowstore", err)
	}
	// One writer connection keeps SQLite happy under concurrent flushes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(rowstoreSchema); err != nil {
		db.Close()
		return nil, storageErr("hitstore.NewRowstore", err)
	}

	logger.Info("Hit storage ready", map[string]interface{}{
		"backend": "rowstore",
		"path":    path,
	})

	return &Rowstore{db: db, logger: logger}, nil
}

func (s *Rowstore) StoreHit(ctx context.Context, event *core.HitEvent) error {
	_, err := s.db.ExecContext(ctx, rowstoreInsert,
		event.ShortCode, event.Timestamp.UTC().Unix(), event.IPAddress,
		event.UserAgent, event.Referer, event.Country, event.DeviceType, event.Browser)
	if err != nil {
		return storageErr("hitstore.StoreHit", err)
	}
	return nil
}

// StoreHits writes the whole batch in one transaction.
func (s *Rowstore) StoreHits(ctx context.Context, events []*core.HitEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("hitstore.StoreHits", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, rowstoreInsert)
	if err != nil {
		return storageErr("hitstore.StoreHits", err)
	}
	defer stmt.Close()

	for _, event := range events {
		_, err := stmt.ExecContext(ctx,
			event.ShortCode, event.Timestamp.UTC().Unix(), event.IPAddress,
			event.UserAgent, event.Referer, event.Country, event.DeviceType, event.Browser)
		if err != nil {
			return storageErr("hitstore.StoreHits", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("hitstore.StoreHits", err)
	}
	return nil
}

func (s *Rowstore) TotalHits(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM url_hits WHERE short_code = ?`, code)
	if err != nil {
		return 0, storageErr("hitstore.TotalHits", err)
	}
	return n, nil
}

func (s *Rowstore) HitsByDevice(ctx context.Context, code string) (map[string]int64, error) {
	return s.countBy(ctx, "device_type", code)
}

func (s *Rowstore) HitsByBrowser(ctx context.Context, code string) (map[string]int64, error) {
	return s.countBy(ctx, "browser", code)
}

func (s *Rowstore) HitsByCountry(ctx context.Context, code string) (map[string]int64, error) {
	return s.countBy(ctx, "country", code)
}

// countBy groups hits by one dimension column. The column name comes
// from the fixed call sites above, never from input.
func (s *Rowstore) countBy(ctx context.Context, column, code string) (map[string]int64, error) {
	query := fmt.Sprintf(`
SELECT COALESCE(NULLIF(%s, ''), 'unknown') AS label, COUNT(*) AS cnt
FROM url_hits WHERE short_code = ?
GROUP BY label`, column)

	rows, err := s.db.QueryxContext(ctx, query, code)
	if err != nil {
		return nil, storageErr("hitstore.countBy", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var label string
		var cnt int64
		if err := rows.Scan(&label, &cnt); err != nil {
			return nil, storageErr("hitstore.countBy", err)
		}
		counts[label] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("hitstore.countBy", err)
	}
	return counts, nil
}

func (s *Rowstore) TopReferers(ctx context.Context, code string, limit int) ([]core.RefererCount, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryxContext(ctx, `
SELECT referer, COUNT(*) AS cnt
FROM url_hits WHERE short_code = ? AND referer != ''
GROUP BY referer
ORDER BY cnt DESC, referer ASC
LIMIT ?`, code, limit)
	if err != nil {
		return nil, storageErr("hitstore.TopReferers", err)
	}
	defer rows.Close()

	var out []core.RefererCount
	for rows.Next() {
		var rc core.RefererCount
		if err := rows.Scan(&rc.Referer, &rc.Count); err != nil {
			return nil, storageErr("hitstore.TopReferers", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("hitstore.TopReferers", err)
	}
	return out, nil
}

func (s *Rowstore) HitsOverTime(ctx context.Context, code string, days int) ([]core.DayCount, error) {
	if days <= 0 {
		return nil, nil
	}

	now := time.Now()
	rows, err := s.db.QueryxContext(ctx, `
SELECT strftime('%Y-%m-%d', timestamp, 'unixepoch') AS day, COUNT(*) AS cnt
FROM url_hits WHERE short_code = ? AND timestamp >= ?
GROUP BY day`, code, windowStart(now, days).Unix())
	if err != nil {
		return nil, storageErr("hitstore.HitsOverTime", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var cnt int64
		if err := rows.Scan(&day, &cnt); err != nil {
			return nil, storageErr("hitstore.HitsOverTime", err)
		}
		counts[day] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("hitstore.HitsOverTime", err)
	}
	return fillDays(now, days, counts), nil
}

func (s *Rowstore) Close() error {
	return s.db.Close()
}

func storageErr(op string, err error) error {
	return &core.ServiceError{
		Op:   op,
		Kind: "hit_storage",
		Err:  fmt.Errorf("%v: %w", err, core.ErrStorageBackendFailure),
	}
}
