package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type memoryEntry struct {
	value   interface{}
	expires time.Time // zero means no expiry
}

// Memory is an in-process TTL cache. Concurrent GetOrCompute calls for
// the same key are collapsed so the compute function runs once.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	group   singleflight.Group
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// GetOrCompute implements Store.
func (c *Memory) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while this
		// goroutine waited on the flight group.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		entry := memoryEntry{value: v}
		if ttl > 0 {
			entry.expires = time.Now().Add(ttl)
		}
		c.mu.Lock()
		c.entries[key] = entry
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (c *Memory) lookup(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		c.Invalidate(key)
		return nil, false
	}
	return entry.value, true
}

// Invalidate implements Store.
func (c *Memory) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of live entries, counting expired ones that have
// not been touched since expiry.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
