// Package cache provides exact-match cache implementations keyed by
// (source hash, target language).
package cache

import (
	"sync"
	"time"

	"tmengine/internal/domain"
)

type key struct {
	hash string
	lang string
}

type memoryEntry struct {
	entry     *domain.TmEntry
	timestamp time.Time
}

// Memory is a thread-safe in-memory exact-match cache with optional TTL.
type Memory struct {
	mu      sync.RWMutex
	entries map[key]memoryEntry
	ttl     time.Duration
}

// NewMemory creates an in-memory cache. A ttl of 0 or less disables
// expiration.
func NewMemory(ttl time.Duration) *Memory {
	if ttl < 0 {
		ttl = 0
	}
	return &Memory{entries: make(map[key]memoryEntry), ttl: ttl}
}

func (c *Memory) Get(hash, targetLang string) (*domain.TmEntry, bool) {
	k := key{hash: hash, lang: targetLang}
	c.mu.RLock()
	me, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(me.timestamp) > c.ttl {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		return nil, false
	}
	return me.entry, true
}

func (c *Memory) Put(hash, targetLang string, e *domain.TmEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{hash: hash, lang: targetLang}] = memoryEntry{entry: e, timestamp: time.Now()}
}

func (c *Memory) Invalidate(hash, targetLang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key{hash: hash, lang: targetLang})
}

func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]memoryEntry)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
