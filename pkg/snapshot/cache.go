package snapshot

import (
	"container/list"
	"sync"
)

// ContentCacheStats describes the in-memory object cache.
type ContentCacheStats struct {
	Entries  int   `json:"entries" yaml:"entries"`
	Bytes    int64 `json:"bytes" yaml:"bytes"`
	Capacity int64 `json:"capacity" yaml:"capacity"`
	Hits     int64 `json:"hits" yaml:"hits"`
	Misses   int64 `json:"misses" yaml:"misses"`
}

type cacheEntry struct {
	hash string
	data []byte
}

// contentCache is an LRU of object bodies bounded by total bytes. A zero
// capacity disables it.
type contentCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	order    *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64
}

func newContentCache(capacity int64) *contentCache {
	return &contentCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *contentCache) get(hash string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[hash]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *contentCache) put(hash string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if c.capacity <= 0 || size > c.capacity {
		return
	}
	if el, ok := c.items[hash]; ok {
		c.order.MoveToFront(el)
		return
	}

	c.items[hash] = c.order.PushFront(&cacheEntry{hash: hash, data: data})
	c.size += size
	for c.size > c.capacity {
		oldest := c.order.Back()
		entry := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.items, entry.hash)
		c.size -= int64(len(entry.data))
	}
}

func (c *contentCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.size = 0
	c.hits = 0
	c.misses = 0
}

func (c *contentCache) stats() ContentCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ContentCacheStats{
		Entries:  len(c.items),
		Bytes:    c.size,
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}
