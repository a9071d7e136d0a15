package orchestrator

import (
	"container/list"
	"context"
	"sync"
)

// MemoryCache is a FIFO bounded map. Reads never refresh an entry's position
// and overwriting an existing key keeps its original slot.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type memoryEntry struct {
	key   string
	value string
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		return el.Value.(*memoryEntry).value, true, nil
	}
	return "", false, nil
}

func (c *MemoryCache) Put(ctx context.Context, key, value string) error {
	_, err := c.put(ctx, key, value)
	return err
}

func (c *MemoryCache) put(_ context.Context, key, value string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*memoryEntry).value = value
		return 0, nil
	}
	var evicted int64
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).key)
		evicted++
	}
	c.entries[key] = c.order.PushBack(&memoryEntry{key: key, value: value})
	return evicted, nil
}

func (c *MemoryCache) Len(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

func (c *MemoryCache) Capacity() int {
	return c.capacity
}

// evictingCache is implemented by the caches in this package so the
// orchestrator can count evictions.
type evictingCache interface {
	put(ctx context.Context, key, value string) (int64, error)
}
