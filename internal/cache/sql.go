package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStorage persists named caches in SQL backends (SQLite or Postgres).
type SQLStorage struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStorage creates a SQLite-backed storage.
// dsn can be a file path (e.g. /tmp/offline.db) or SQLite DSN.
func NewSQLiteStorage(dsn string) (*SQLStorage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "eventgw-offline.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite storage: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &SQLStorage{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorage creates a Postgres-backed storage.
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres storage: %w", err)
	}
	s := &SQLStorage{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s storage: %w", s.dialect, err)
	}

	var ddl []string
	switch s.dialect {
	case dialectPostgres:
		ddl = []string{`
CREATE TABLE IF NOT EXISTS offline_caches (
	seq BIGSERIAL UNIQUE,
	name TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS offline_entries (
	cache_name TEXT NOT NULL,
	req_key TEXT NOT NULL,
	status INTEGER NOT NULL,
	status_text TEXT NOT NULL,
	header TEXT NOT NULL,
	body BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cache_name, req_key)
)`}
	default:
		ddl = []string{`
CREATE TABLE IF NOT EXISTS offline_caches (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	created_at DATETIME NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS offline_entries (
	cache_name TEXT NOT NULL,
	req_key TEXT NOT NULL,
	status INTEGER NOT NULL,
	status_text TEXT NOT NULL,
	header TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_at DATETIME NOT NULL,
	PRIMARY KEY (cache_name, req_key)
)`}
	}

	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize %s storage schema: %w", s.dialect, err)
		}
	}
	return nil
}

// Open returns the named cache, inserting its row if absent. The handle is
// bound to the row it saw; once that row is deleted, Put through the handle is
// a no-op even if the name is opened again.
func (s *SQLStorage) Open(ctx context.Context, name string) (Cache, error) {
	var q string
	switch s.dialect {
	case dialectPostgres:
		q = `INSERT INTO offline_caches (name, created_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	default:
		q = `INSERT OR IGNORE INTO offline_caches (name, created_at) VALUES (?, ?)`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, q, name, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, s.bind(`SELECT seq FROM offline_caches WHERE name = ?`), name).Scan(&seq); err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	return &sqlCache{s: s, name: name, seq: seq}, nil
}

// Has reports whether the named cache exists.
func (s *SQLStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM offline_caches WHERE name = ?`), name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup cache %q: %w", name, err)
	}
	return n > 0, nil
}

// Delete removes the cache row and its entries in one transaction.
func (s *SQLStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Row before entries: a Put that already holds the row commits first and
	// its entry is swept below.
	res, err := tx.ExecContext(ctx, s.bind(`DELETE FROM offline_caches WHERE name = ?`), name)
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM offline_entries WHERE cache_name = ?`), name); err != nil {
		return false, fmt.Errorf("delete entries of %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete %q: %w", name, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Keys lists cache names in creation order.
func (s *SQLStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM offline_caches ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Match returns the entry from the earliest created cache holding key.
func (s *SQLStorage) Match(ctx context.Context, key string) (*Entry, error) {
	q := s.bind(`
SELECT e.status, e.status_text, e.header, e.body, e.stored_at
FROM offline_entries e
JOIN offline_caches c ON c.name = e.cache_name
WHERE e.req_key = ?
ORDER BY c.seq
LIMIT 1`)
	return scanEntry(s.db.QueryRowContext(ctx, q, key))
}

// Close closes the database handle.
func (s *SQLStorage) Close() error { return s.db.Close() }

func (s *SQLStorage) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type sqlCache struct {
	s    *SQLStorage
	name string
	seq  int64
}

func (c *sqlCache) Match(ctx context.Context, key string) (*Entry, error) {
	q := c.s.bind(`
SELECT status, status_text, header, body, stored_at
FROM offline_entries
WHERE cache_name = ? AND req_key = ?`)
	return scanEntry(c.s.db.QueryRowContext(ctx, q, c.name, key))
}

func (c *sqlCache) Put(ctx context.Context, key string, entry *Entry) error {
	hdr, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header for %q: %w", key, err)
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	lock := `SELECT 1 FROM offline_caches WHERE name = ? AND seq = ?`
	if c.s.dialect == dialectPostgres {
		lock += ` FOR SHARE`
	}
	upsert := `
INSERT INTO offline_entries (cache_name, req_key, status, status_text, header, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cache_name, req_key) DO UPDATE SET
	status = excluded.status,
	status_text = excluded.status_text,
	header = excluded.header,
	body = excluded.body,
	stored_at = excluded.stored_at`

	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, c.s.bind(lock), c.name, c.seq).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		// The cache was deleted after this handle was opened.
		return nil
	}
	if err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	if _, err := tx.ExecContext(ctx, c.s.bind(upsert), c.name, key, entry.Status, entry.StatusText, string(hdr), body, storedAt); err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	return nil
}

func (c *sqlCache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.s.db.ExecContext(ctx, c.s.bind(`DELETE FROM offline_entries WHERE cache_name = ? AND req_key = ?`), c.name, key)
	if err != nil {
		return false, fmt.Errorf("delete %q from %q: %w", key, c.name, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (c *sqlCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.s.db.QueryContext(ctx, c.s.bind(`SELECT req_key FROM offline_entries WHERE cache_name = ? ORDER BY stored_at`), c.name)
	if err != nil {
		return nil, fmt.Errorf("list keys of %q: %w", c.name, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var (
		e   Entry
		hdr string
	)
	err := row.Scan(&e.Status, &e.StatusText, &hdr, &e.Body, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Header = make(http.Header)
	if hdr != "" {
		if err := json.Unmarshal([]byte(hdr), &e.Header); err != nil {
			return nil, fmt.Errorf("decode entry header: %w", err)
		}
	}
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	return &e, nil
}
