package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key      Key
	body     []byte
	storedAt time.Time
}

// MemoryCache is a process-local Cache with a fixed TTL and a hard entry cap.
// When a new key would exceed the cap, expired entries are dropped first and
// then, if still full, the single oldest entry.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[Key]*list.Element
	// order holds *memoryEntry oldest first.
	order *list.List
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if c.expired(entry, c.now()) {
		c.remove(el)
		return nil, false
	}
	return entry.body, true
}

func (c *MemoryCache) Put(_ context.Context, key Key, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.body = body
		entry.storedAt = now
		c.order.MoveToBack(el)
		return
	}

	if len(c.entries) >= c.maxEntries {
		c.pruneExpired(now)
	}
	if len(c.entries) >= c.maxEntries {
		c.remove(c.order.Front())
	}

	c.entries[key] = c.order.PushBack(&memoryEntry{key: key, body: body, storedAt: now})
}

// Len reports the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(entry *memoryEntry, now time.Time) bool {
	return now.Sub(entry.storedAt) > c.ttl
}

// pruneExpired walks from the oldest entry and stops at the first live one.
func (c *MemoryCache) pruneExpired(now time.Time) {
	for el := c.order.Front(); el != nil; {
		if !c.expired(el.Value.(*memoryEntry), now) {
			return
		}
		next := el.Next()
		c.remove(el)
		el = next
	}
}

func (c *MemoryCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	entry := c.order.Remove(el).(*memoryEntry)
	delete(c.entries, entry.key)
}
