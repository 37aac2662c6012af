package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	c:<name>               -> gob(levelMeta)
//	e:<name>\x00<reqKey>   -> gob(Entry)
const (
	levelCachePrefix = "c:"
	levelEntryPrefix = "e:"
)

type levelMeta struct {
	Seq       uint64
	CreatedAt time.Time
}

// LevelDB is a disk-backed Storage on goleveldb.
type LevelDB struct {
	db *leveldb.DB

	mu  sync.Mutex
	seq uint64
}

// NewLevelDB opens (or creates) the database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	if path == "" {
		path = "./data/offline"
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb storage: %w", err)
	}
	s := &LevelDB{db: db}
	metas, err := s.metas()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, m := range metas {
		if m.meta.Seq > s.seq {
			s.seq = m.meta.Seq
		}
	}
	return s, nil
}

type namedMeta struct {
	name string
	meta levelMeta
}

func (s *LevelDB) metas() ([]namedMeta, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(levelCachePrefix)), nil)
	defer it.Release()

	var out []namedMeta
	for it.Next() {
		var m levelMeta
		if err := decodeGob(it.Value(), &m); err != nil {
			continue
		}
		name := string(bytes.TrimPrefix(it.Key(), []byte(levelCachePrefix)))
		out = append(out, namedMeta{name: name, meta: m})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("scan leveldb caches: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].meta.Seq < out[j].meta.Seq })
	return out, nil
}

// Open returns the named cache, creating its record if absent. The handle is
// bound to the record it saw; once that record is deleted, Put through the
// handle is a no-op even if the name is opened again.
func (s *LevelDB) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok, err := s.meta(name)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	if !ok {
		s.seq++
		meta = levelMeta{Seq: s.seq, CreatedAt: time.Now().UTC()}
		b, err := encodeGob(meta)
		if err != nil {
			return nil, err
		}
		if err := s.db.Put([]byte(levelCachePrefix+name), b, nil); err != nil {
			return nil, fmt.Errorf("create cache %q: %w", name, err)
		}
	}
	return &levelCache{s: s, name: name, seq: meta.Seq}, nil
}

// meta reads the record of the named cache. Callers hold s.mu.
func (s *LevelDB) meta(name string) (levelMeta, bool, error) {
	var m levelMeta
	b, err := s.db.Get([]byte(levelCachePrefix+name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	if err := decodeGob(b, &m); err != nil {
		return m, false, fmt.Errorf("decode cache record %q: %w", name, err)
	}
	return m, true, nil
}

// Has reports whether the named cache exists.
func (s *LevelDB) Has(_ context.Context, name string) (bool, error) {
	return s.db.Has([]byte(levelCachePrefix+name), nil)
}

// Delete removes the cache record and all of its entries in one batch.
func (s *LevelDB) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has([]byte(levelCachePrefix+name), nil)
	if err != nil || !ok {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(levelCachePrefix + name))
	it := s.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, fmt.Errorf("scan cache %q: %w", name, err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	return true, nil
}

// Keys lists cache names in creation order.
func (s *LevelDB) Keys(_ context.Context) ([]string, error) {
	metas, err := s.metas()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.name)
	}
	return out, nil
}

// Match searches all caches in creation order.
func (s *LevelDB) Match(ctx context.Context, key string) (*Entry, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		c := &levelCache{s: s, name: name}
		e, err := c.Match(ctx, key)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Close closes the underlying database.
func (s *LevelDB) Close() error { return s.db.Close() }

type levelCache struct {
	s    *LevelDB
	name string
	seq  uint64
}

func entryPrefix(name string) []byte {
	b := make([]byte, 0, len(levelEntryPrefix)+len(name)+1)
	b = append(b, levelEntryPrefix...)
	b = append(b, name...)
	return append(b, 0)
}

func (c *levelCache) entryKey(key string) []byte {
	return append(entryPrefix(c.name), key...)
}

func (c *levelCache) Match(_ context.Context, key string) (*Entry, error) {
	b, err := c.s.db.Get(c.entryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q from %q: %w", key, c.name, err)
	}
	var e Entry
	if err := decodeGob(b, &e); err != nil {
		return nil, fmt.Errorf("decode %q from %q: %w", key, c.name, err)
	}
	return &e, nil
}

func (c *levelCache) Put(_ context.Context, key string, entry *Entry) error {
	b, err := encodeGob(entry)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	meta, ok, err := c.s.meta(c.name)
	if err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	if !ok || meta.Seq != c.seq {
		return nil
	}
	batch := new(leveldb.Batch)
	batch.Put(c.entryKey(key), b)
	if err := c.s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("put %q into %q: %w", key, c.name, err)
	}
	return nil
}

func (c *levelCache) Delete(_ context.Context, key string) (bool, error) {
	k := c.entryKey(key)
	ok, err := c.s.db.Has(k, nil)
	if err != nil || !ok {
		return false, err
	}
	return true, c.s.db.Delete(k, nil)
}

func (c *levelCache) Keys(_ context.Context) ([]string, error) {
	prefix := entryPrefix(c.name)
	it := c.s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(prefix):]))
	}
	return out, it.Error()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func init() {
	gob.Register(http.Header{})
}
