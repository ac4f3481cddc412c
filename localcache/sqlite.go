package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adeilh/unimart/cache"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// SQLiteOptions configures the persistent tier.
type SQLiteOptions struct {
	// Path is the database file. ":memory:" keeps the tier in process.
	Path string
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
	Now         func() time.Time
}

func (o SQLiteOptions) withDefaults() SQLiteOptions {
	if o.Path == "" {
		o.Path = ":memory:"
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SQLiteStore is a cache.Store persisted in a single SQLite file. It
// survives process restarts, which makes it the persistent tier of Mirror.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ cache.Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the store at opts.Path.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLiteStore, error) {
	cfg := opts.withDefaults()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.Path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("localcache: open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("localcache: create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: cfg.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	if expired(expiresAt, s.now()) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, cache.ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	const query = `INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
                   ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return wrap("set", err)
	}
	return nil
}

// Keys narrows the scan to the pattern's literal prefix and matches the
// rest in Go so glob semantics equal the other backends. The prefix is
// compared as bytes since len(prefix) counts bytes.
func (s *SQLiteStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := literalPrefix(pattern)
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, expires_at FROM cache_entries
		 WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB) ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, wrap("keys", err)
	}
	defer rows.Close()

	now := s.now()
	var keys []string
	for rows.Next() {
		var (
			key       string
			expiresAt int64
		)
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, wrap("keys", err)
		}
		if expired(expiresAt, now) || !cache.MatchPattern(pattern, key) {
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("keys", err)
	}
	return keys, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("delete", err)
	}
	now := s.now().UnixNano()
	var removed int64
	for _, key := range keys {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`, key, now)
		if err != nil {
			_ = tx.Rollback()
			return 0, wrap("delete", err)
		}
		n, _ := res.RowsAffected()
		removed += n
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			_ = tx.Rollback()
			return 0, wrap("delete", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("delete", err)
	}
	return removed, nil
}

func (s *SQLiteStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return wrap("flush", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// DeleteExpired purges rows whose store-level expiry has passed.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, wrap("delete expired", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func expired(expiresAt int64, now time.Time) bool {
	return expiresAt > 0 && now.UnixNano() >= expiresAt
}

// literalPrefix returns the part of pattern before its first wildcard,
// with escapes resolved.
func literalPrefix(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*', '?', '[':
			return b.String()
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteByte(pattern[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: sqlite %s: %w", cache.ErrUnavailable, op, err)
}
