package scanner

import (
	"container/list"
	"sync"
	"time"
)

type fileKey struct {
	repo string
	path string
	sha  string
}

type cacheEntry struct {
	key       fileKey
	content   string
	expiresAt time.Time
}

// CacheStats is a snapshot of cache effectiveness counters.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// FileCache is a concurrent LRU cache of decoded file contents keyed by
// (repo full name, path, sha). TTL is absolute: an expired entry is a miss.
type FileCache struct {
	mu         sync.Mutex
	ll         *list.List
	items      map[fileKey]*list.Element
	maxEntries int
	ttl        time.Duration

	hits      uint64
	misses    uint64
	evictions uint64

	nowFn func() time.Time
}

// NewFileCache creates a cache holding at most maxEntries items.
func NewFileCache(maxEntries int, ttl time.Duration) *FileCache {
	return &FileCache{
		ll:         list.New(),
		items:      make(map[fileKey]*list.Element),
		maxEntries: maxEntries,
		ttl:        ttl,
		nowFn:      time.Now,
	}
}

// Get returns cached content for the key, if present and fresh.
func (c *FileCache) Get(repo, path, sha string) (string, bool) {
	key := fileKey{repo: repo, path: path, sha: sha}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		Metrics().CacheMisses.Inc()
		return "", false
	}
	entry := el.Value.(*cacheEntry)
	if c.nowFn().After(entry.expiresAt) {
		c.removeElement(el)
		c.misses++
		Metrics().CacheMisses.Inc()
		return "", false
	}
	c.ll.MoveToFront(el)
	c.hits++
	Metrics().CacheHits.Inc()
	return entry.content, true
}

// Put stores decoded content. Oldest entries are evicted past the cap.
func (c *FileCache) Put(repo, path, sha, content string) {
	key := fileKey{repo: repo, path: path, sha: sha}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		entry.content = content
		entry.expiresAt = c.nowFn().Add(c.ttl)
		return
	}

	el := c.ll.PushFront(&cacheEntry{
		key:       key,
		content:   content,
		expiresAt: c.nowFn().Add(c.ttl),
	})
	c.items[key] = el

	for c.maxEntries > 0 && c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}
}

func (c *FileCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}

// Stats returns a snapshot of the cache counters.
func (c *FileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.ll.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
