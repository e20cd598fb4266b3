// Package urlstore is the authoritative, transactional home of URL
// records. It speaks Postgres for shared deployments and SQLite for
// single-box ones; the dialect is picked from the configured URL
// scheme. Everything analytical lives in hitstore instead.
package urlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS urls (
	id          BIGSERIAL PRIMARY KEY,
	long_url    TEXT NOT NULL,
	short_code  TEXT UNIQUE,
	total_hits  BIGINT NOT NULL DEFAULT 0,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_urls_short_code ON urls (short_code);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS urls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	long_url    TEXT NOT NULL,
	short_code  TEXT UNIQUE,
	total_hits  INTEGER NOT NULL DEFAULT 0,
	is_active   INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_urls_short_code ON urls (short_code);
`

// Store implements core.URLStore on sqlx.
type Store struct {
	db      *sqlx.DB
	dialect string
	logger  core.Logger
}

// New opens the database named by cfg.URL and verifies the connection.
// Schema creation is a separate step, see EnsureSchema.
func New(cfg config.StoreConfig, logger core.Logger) (*Store, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	dialect, driver, dsn, err := parseTarget(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, storeErr("urlstore.New", err)
	}

	if dialect == dialectSQLite {
		// A single connection sidesteps SQLITE_BUSY between the pool's
		// writers; WAL still lets other processes read.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("Failed to connect to URL store", map[string]interface{}{
			"error":   err,
			"dialect": dialect,
		})
		return nil, storeErr("urlstore.New", err)
	}

	logger.Info("URL store connected", map[string]interface{}{
		"dialect": dialect,
	})

	return &Store{db: db, dialect: dialect, logger: logger}, nil
}

// parseTarget maps a store URL onto a dialect, a driver name, and the
// DSN that driver expects.
func parseTarget(url string) (dialect, driver, dsn string, err error) {
	switch {
	case url == "":
		return "", "", "", fmt.Errorf("store URL is required: %w", core.ErrMissingConfiguration)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return dialectPostgres, "postgres", url, nil
	case strings.HasPrefix(url, "sqlite://"):
		return dialectSQLite, "sqlite", sqliteDSN(strings.TrimPrefix(url, "sqlite://")), nil
	case strings.Contains(url, "://"):
		return "", "", "", fmt.Errorf("unsupported store URL scheme %q: %w", url, core.ErrInvalidConfiguration)
	default:
		// A bare path is treated as a SQLite file.
		return dialectSQLite, "sqlite", sqliteDSN(url), nil
	}
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// EnsureSchema creates the urls table and its index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == dialectPostgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storeErr("urlstore.EnsureSchema", err)
	}
	return nil
}

// Insert creates a placeholder row with no short code and returns the
// record with the store-minted id. The code arrives via AssignCode.
func (s *Store) Insert(ctx context.Context, longURL string) (*core.URLRecord, error) {
	now := time.Now().UTC()
	rec := &core.URLRecord{
		LongURL:   longURL,
		IsActive:  true,
		CreatedAt: now,
	}

	if s.dialect == dialectPostgres {
		query := s.db.Rebind(`INSERT INTO urls (long_url, total_hits, is_active, created_at) VALUES (?, 0, ?, ?) RETURNING id`)
		if err := s.db.QueryRowContext(ctx, query, longURL, true, now).Scan(&rec.ID); err != nil {
			return nil, storeErr("urlstore.Insert", err)
		}
		return rec, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO urls (long_url, total_hits, is_active, created_at) VALUES (?, 0, ?, ?)`,
		longURL, true, now)
	if err != nil {
		return nil, storeErr("urlstore.Insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("urlstore.Insert", err)
	}
	rec.ID = id
	return rec, nil
}

// AssignCode completes the two-phase create by attaching the generated
// code to the placeholder row.
func (s *Store) AssignCode(ctx context.Context, id int64, code string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE urls SET short_code = ?, updated_at = ? WHERE id = ?`),
		code, time.Now().UTC(), id)
	if err != nil {
		return storeErr("urlstore.AssignCode", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("urlstore.AssignCode", err)
	}
	if n == 0 {
		return &core.ServiceError{
			Op:   "urlstore.AssignCode",
			Kind: "url_store",
			Err:  fmt.Errorf("id %d: %w", id, core.ErrNotFound),
		}
	}
	return nil
}

// GetByCode returns the active record for code. Soft-deleted and
// placeholder rows are invisible here.
func (s *Store) GetByCode(ctx context.Context, code string) (*core.URLRecord, error) {
	var rec core.URLRecord
	err := s.db.GetContext(ctx, &rec,
		s.db.Rebind(`SELECT id, long_url, short_code, total_hits, is_active, created_at, updated_at
FROM urls WHERE short_code = ? AND is_active = ?`),
		code, true)
	if err == sql.ErrNoRows {
		return nil, &core.ServiceError{
			Op:   "urlstore.GetByCode",
			Kind: "url_store",
			Code: code,
			Err:  core.ErrNotFound,
		}
	}
	if err != nil {
		return nil, storeErr("urlstore.GetByCode", err)
	}
	return &rec, nil
}

// Deactivate soft-deletes the record. The row and its counters stay for
// analytics, and the code is never reissued.
func (s *Store) Deactivate(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE urls SET is_active = ?, updated_at = ? WHERE short_code = ? AND is_active = ?`),
		false, time.Now().UTC(), code, true)
	if err != nil {
		return storeErr("urlstore.Deactivate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("urlstore.Deactivate", err)
	}
	if n == 0 {
		return &core.ServiceError{
			Op:   "urlstore.Deactivate",
			Kind: "url_store",
			Code: code,
			Err:  core.ErrNotFound,
		}
	}
	return nil
}

// IncrementHits applies all deltas in one transaction, in sorted code
// order so concurrent workers cannot deadlock each other. Codes that no
// longer exist are logged and skipped; deactivated ones still count.
func (s *Store) IncrementHits(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	codes := make([]string, 0, len(deltas))
	for code := range deltas {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("urlstore.IncrementHits", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		s.db.Rebind(`UPDATE urls SET total_hits = total_hits + ?, updated_at = ? WHERE short_code = ?`))
	if err != nil {
		return storeErr("urlstore.IncrementHits", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, code := range codes {
		res, err := stmt.ExecContext(ctx, deltas[code], now, code)
		if err != nil {
			return storeErr("urlstore.IncrementHits", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr("urlstore.IncrementHits", err)
		}
		if n == 0 {
			s.logger.Warn("Skipping hit increment for unknown code", map[string]interface{}{
				"short_code": code,
				"delta":      deltas[code],
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("urlstore.IncrementHits", err)
	}
	return nil
}

// CodeExists reports whether code was ever issued, active or not.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM urls WHERE short_code = ?`), code)
	if err != nil {
		return false, storeErr("urlstore.CodeExists", err)
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("urlstore.Ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func storeErr(op string, err error) error {
	return &core.ServiceError{
		Op:   op,
		Kind: "url_store",
		Err:  fmt.Errorf("%v: %w", err, core.ErrStorageUnavailable),
	}
}
