// Package cache keeps recent hierarchy read responses in memory. Every
// successful mutation through the API clears it.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	body        []byte
	contentType string
}

// ResponseCache is a size and TTL bounded LRU of response bodies keyed by
// request URI.
type ResponseCache struct {
	lru *expirable.LRU[string, entry]
	// mu orders set against Purge.
	mu sync.Mutex
	// generation advances on every purge; a response computed under an older
	// generation is discarded rather than stored.
	generation atomic.Uint64
}

// NewResponseCache creates a cache holding at most maxSize entries for ttl.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResponseCache{lru: expirable.NewLRU[string, entry](maxSize, nil, ttl)}
}

func (c *ResponseCache) get(key string) (entry, bool) {
	return c.lru.Get(key)
}

func (c *ResponseCache) set(key string, gen uint64, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return
	}
	c.lru.Add(key, e)
}

// Purge drops every entry.
func (c *ResponseCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *ResponseCache) Len() int {
	return c.lru.Len()
}
