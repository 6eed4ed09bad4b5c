package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/richardartoul/contentcache/cachekey"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_accessed_at ON entries (accessed_at);`

// SQLiteConfig is the policy of a SQLite cache.
type SQLiteConfig struct {
	// Path is the database file.
	Path string
	// MaxSize is the total byte budget of stored values.
	MaxSize int64
	// TTL is the age, measured from an entry's creation, at which it expires.
	TTL time.Duration
}

// SQLite implements Backend on a single SQLite database file. It applies
// the same TTL and least-recently-used policy as Disk, but keeps the
// creation and access stamps in columns instead of file attributes. It is
// the default persistent tier for structured records, which are small and
// numerous.
type SQLite struct {
	db     *sql.DB
	cfg    SQLiteConfig
	now    func() time.Time
	logger *slog.Logger

	evicting atomic.Bool
}

// SQLiteOption configures a SQLite backend.
type SQLiteOption func(*SQLite)

// WithSQLiteClock sets the time source used for TTL checks and access stamps.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) {
		s.now = now
	}
}

// WithSQLiteLogger sets the logger used for debug output.
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		s.logger = logger
	}
}

// OpenSQLite opens (creating if needed) a SQLite cache at cfg.Path.
func OpenSQLite(cfg SQLiteConfig, opts ...SQLiteOption) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	cleanPath := filepath.Clean(cfg.Path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps the pragmas below in effect and serializes
	// writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite db: %w", err)
		}
	}

	s := &SQLite{
		db:     db,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get retrieves an object, expiring it when its TTL has elapsed.
func (s *SQLite) Get(ctx context.Context, key cachekey.Key) ([]byte, bool) {
	var (
		value     []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM entries WHERE key = ?`, key.String(),
	).Scan(&value, &createdAt)
	if err != nil {
		return nil, false
	}

	now := s.now()
	if !now.Before(fromMillis(createdAt).Add(s.cfg.TTL)) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key.String())
		return nil, false
	}

	_, _ = s.db.ExecContext(ctx,
		`UPDATE entries SET accessed_at = ? WHERE key = ?`, toMillis(now), key.String())
	return value, true
}

// Put stores an object and enforces the size budget. Empty content is a
// no-op.
func (s *SQLite) Put(ctx context.Context, key cachekey.Key, data []byte) {
	if len(data) == 0 {
		return
	}

	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, size, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   size = excluded.size,
		   created_at = excluded.created_at,
		   accessed_at = excluded.accessed_at`,
		key.String(), data, len(data), now, now)
	if err != nil {
		s.logger.Debug("sqlite write failed", "key", key, "error", err)
		return
	}

	s.enforceMaxSize(ctx)
}

// Remove deletes an object.
func (s *SQLite) Remove(ctx context.Context, key cachekey.Key) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key.String())
}

// Clear removes all objects.
func (s *SQLite) Clear(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM entries`)
}

func (s *SQLite) enforceMaxSize(ctx context.Context) {
	if !s.evicting.CompareAndSwap(false, true) {
		return
	}
	defer s.evicting.Store(false)

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM entries`).Scan(&total); err != nil {
		return
	}
	if total <= s.cfg.MaxSize {
		return
	}

	type candidate struct {
		key  string
		size int64
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, size FROM entries ORDER BY accessed_at ASC, key ASC`)
	if err != nil {
		return
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.key, &c.size); err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	_ = rows.Close()

	var evicted int
	for _, c := range candidates {
		if total <= s.cfg.MaxSize {
			break
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, c.key); err != nil {
			continue
		}
		total -= c.size
		evicted++
	}

	s.logger.Debug("sqlite eviction finished",
		"evicted", evicted,
		"remainingBytes", total,
		"maxBytes", s.cfg.MaxSize)
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
