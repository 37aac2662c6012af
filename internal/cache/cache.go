// Package cache provides the named-cache storage used by the offline cache
// manager. A Storage holds any number of named caches; each Cache maps a
// normalized request key to a captured response Entry.
//
// Backends: Memory (in-process), LevelDB (single-node disk) and SQLStorage
// (SQLite or Postgres).
package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when a key or a named cache does not exist.
var ErrNotFound = errors.New("cache: not found")

// Entry is a captured response. Entries are treated as immutable once
// stored; Put with the same key replaces the previous entry.
type Entry struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Clone returns a deep copy so a stored entry never shares its header map or
// body with the response handed to the caller.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Header = e.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Body = append([]byte(nil), e.Body...)
	return &out
}

// OK reports whether the entry carries a 200 status.
func (e *Entry) OK() bool { return e != nil && e.Status == http.StatusOK }

// Cache is a single named key→response store.
type Cache interface {
	// Match returns the entry for key or ErrNotFound.
	Match(ctx context.Context, key string) (*Entry, error)
	// Put stores entry under key, overwriting any previous value.
	Put(ctx context.Context, key string, entry *Entry) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists stored request keys.
	Keys(ctx context.Context) ([]string, error)
}

// Storage manages the set of named caches.
type Storage interface {
	// Open returns the named cache, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Has reports whether a cache with that name exists.
	Has(ctx context.Context, name string) (bool, error)
	// Delete removes the named cache with all its entries and reports
	// whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Match searches every cache in creation order and returns the first
	// entry stored under key, or ErrNotFound.
	Match(ctx context.Context, key string) (*Entry, error)
	// Close releases backend resources.
	Close() error
}

// Key builds the normalized request descriptor for r.
func Key(r *http.Request) string {
	return KeyFor(r.Method, r.URL)
}

// KeyFor builds the normalized request descriptor from a method and URL:
// upper-cased method, lower-cased scheme and host, fragment dropped, empty
// path replaced by "/".
func KeyFor(method string, u *url.URL) string {
	if method == "" {
		method = http.MethodGet
	}
	cp := *u
	cp.Scheme = strings.ToLower(cp.Scheme)
	cp.Host = strings.ToLower(cp.Host)
	cp.Fragment = ""
	cp.RawFragment = ""
	if cp.Path == "" && cp.Host != "" {
		cp.Path = "/"
	}
	return strings.ToUpper(method) + " " + cp.String()
}

// DeleteAll removes every named cache in s.
func DeleteAll(ctx context.Context, s Storage) error {
	names, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := s.Delete(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
