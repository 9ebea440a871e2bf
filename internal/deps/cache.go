package deps

import (
	"container/list"
	"sync"
	"time"
)

// cache is a thread-safe LRU of resolved dependency payloads with a TTL.
type cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheItem struct {
	key       string
	value     string
	expiresAt time.Time
}

func newCache(maxSize int, ttl time.Duration) *cache {
	return &cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	item := elem.Value.(*cacheItem)
	if c.now().After(item.expiresAt) {
		c.remove(elem)
		return "", false
	}
	c.lru.MoveToFront(elem)
	return item.value, true
}

func (c *cache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*cacheItem)
		item.value = value
		item.expiresAt = c.now().Add(c.ttl)
		return
	}

	elem := c.lru.PushFront(&cacheItem{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
	c.items[key] = elem
	if c.lru.Len() > c.maxSize {
		c.remove(c.lru.Back())
	}
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru = list.New()
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *cache) remove(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}
