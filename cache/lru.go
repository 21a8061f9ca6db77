// Package cache provides the fixed-capacity LRU maps owned by a chat service
// instance. Entries are evicted purely by recency, never by age.
package cache

import (
	"chat-core/domain"
	"chat-core/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	ProfileCacheSize = 500
	MessageCacheSize = 20
)

// LRU is a bounded map evicting the least-recently-used entry on Put when full.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	name    string
	entries *lru.Cache[K, V]
	metrics *observability.Metrics
}

func NewLRU[K comparable, V any](name string, size int, metrics *observability.Metrics) (*LRU[K, V], error) {
	entries, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{name: name, entries: entries, metrics: metrics}, nil
}

// Get returns the value and marks it as most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	value, ok := c.entries.Get(key)
	c.metrics.ObserveCache(c.name, ok)
	return value, ok
}

// Put inserts or refreshes a value. It reports whether an entry was evicted.
func (c *LRU[K, V]) Put(key K, value V) bool {
	return c.entries.Add(key, value)
}

// Contains checks presence without touching recency.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.entries.Contains(key)
}

func (c *LRU[K, V]) Remove(key K) {
	c.entries.Remove(key)
}

func (c *LRU[K, V]) Len() int {
	return c.entries.Len()
}

// Keys returns the keys from least to most recently used.
func (c *LRU[K, V]) Keys() []K {
	return c.entries.Keys()
}

func (c *LRU[K, V]) Purge() {
	c.entries.Purge()
}

type ProfileCache = LRU[string, domain.Profile]

type MessageCache = LRU[domain.RoomID, domain.MessagePage]

func NewProfileCache(size int, metrics *observability.Metrics) (*ProfileCache, error) {
	if size <= 0 {
		size = ProfileCacheSize
	}
	return NewLRU[string, domain.Profile]("profile", size, metrics)
}

func NewMessageCache(size int, metrics *observability.Metrics) (*MessageCache, error) {
	if size <= 0 {
		size = MessageCacheSize
	}
	return NewLRU[domain.RoomID, domain.MessagePage]("message", size, metrics)
}
