package gia

import (
	"container/list"
	"context"
	"encoding/base64"
	"sync"
	"time"
)

// Cache stores serialized terminal upload job snapshots. Keys are built by
// JobCacheKey.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheEntry is a cached value with an optional expiry.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the entry is past its expiry.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// JobCacheKey returns the cache key of an upload job. Each id is encoded as
// unpadded base64url, so distinct id pairs never share a key and only
// characters valid in a NATS KV key are produced.
func JobCacheKey(applicationID, uploadID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(applicationID)) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(uploadID))
}

// MemoryCache is a size-bounded in-process LRU cache.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	items   map[string]*list.Element
}

type memoryItem struct {
	key   string
	entry *CacheEntry
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1
	}

	return &MemoryCache{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	item := elem.Value.(*memoryItem) //nolint:forcetypeassert // only memoryItem is stored

	if item.entry.Expired(time.Now()) {
		c.order.Remove(elem)
		delete(c.items, key)

		return nil, ErrCacheMiss
	}

	c.order.MoveToFront(elem)

	return item.entry, nil
}

// Set stores entry under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*memoryItem).entry = entry //nolint:forcetypeassert // only memoryItem is stored
		c.order.MoveToFront(elem)

		return nil
	}

	c.items[key] = c.order.PushFront(&memoryItem{key: key, entry: entry})

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryItem).key) //nolint:forcetypeassert // only memoryItem is stored
	}

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}

	return nil
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Close is a no-op.
func (c *MemoryCache) Close() error {
	return nil
}
