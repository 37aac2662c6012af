package cache

import (
	"container/list"
	"context"
	"sync"
)

// Memory is a thread-safe in-process Storage. Each named cache is an LRU
// bounded by maxEntries; zero means unbounded.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	order      []string
	caches     map[string]*memoryCache
}

// NewMemory creates an empty in-memory storage.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		caches:     make(map[string]*memoryCache),
	}
}

// Open returns the named cache, creating it if absent.
func (m *Memory) Open(_ context.Context, name string) (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[name]; ok {
		return c, nil
	}
	c := newMemoryCache(m.maxEntries)
	m.caches[name] = c
	m.order = append(m.order, name)
	return c, nil
}

// Has reports whether the named cache exists.
func (m *Memory) Has(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.caches[name]
	return ok, nil
}

// Delete drops the named cache. Handles opened earlier keep working but are
// no longer reachable through the storage.
func (m *Memory) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.caches[name]; !ok {
		return false, nil
	}
	delete(m.caches, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys lists cache names in creation order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Match searches all caches in creation order.
func (m *Memory) Match(ctx context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	caches := make([]*memoryCache, 0, len(m.order))
	for _, n := range m.order {
		caches = append(caches, m.caches[n])
	}
	m.mu.Unlock()

	for _, c := range caches {
		if e, err := c.Match(ctx, key); err == nil {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Close is a no-op for the in-memory storage.
func (m *Memory) Close() error { return nil }

type memoryEntry struct {
	key   string
	entry *Entry
}

type memoryCache struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
}

func newMemoryCache(capacity int) *memoryCache {
	return &memoryCache{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

func (c *memoryCache) Match(_ context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	c.evictList.MoveToFront(elem)
	return elem.Value.(*memoryEntry).entry.Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := entry.Clone()
	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		elem.Value.(*memoryEntry).entry = stored
		return nil
	}

	if c.capacity > 0 && c.evictList.Len() >= c.capacity {
		c.removeOldest()
	}
	c.items[key] = c.evictList.PushFront(&memoryEntry{key: key, entry: stored})
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.removeElement(elem)
	return true, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for e := c.evictList.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.(*memoryEntry).key)
	}
	return out, nil
}

func (c *memoryCache) removeOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *memoryCache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*memoryEntry).key)
}
