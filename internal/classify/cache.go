package classify

import (
	"sync"
	"time"

	"github.com/haianbui/clawrouter/internal/catalog"
)

const (
	cacheTTL      = time.Hour
	cacheCapacity = 1000
)

// CacheEntry is one stored classification, keyed by prompt fingerprint.
type CacheEntry struct {
	Fingerprint string
	Tier        catalog.Tier
	InsertedAt  time.Time
}

// Cache is the {lookup, insert, invalidate} interface design notes call
// for (spec.md §9, "cache as arena") so the LLM Classifier can be tested
// against a stub.
type Cache interface {
	Lookup(fingerprint string) (catalog.Tier, bool)
	Insert(fingerprint string, tier catalog.Tier)
	Invalidate()
}

// ClassificationCache is a single-writer-many-reader, TTL- and
// capacity-bounded cache of LLM classification results. Reads take the
// same mutex as writes; at this request volume a shared lock buys nothing
// a plain mutex doesn't already give, and the invariant under test (P6,
// P7) only cares about external behavior.
type ClassificationCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	order   []string // insertion order, oldest first, for eviction
}

// NewClassificationCache returns an empty cache ready for use.
func NewClassificationCache() *ClassificationCache {
	return &ClassificationCache{
		entries: make(map[string]CacheEntry, cacheCapacity),
	}
}

// Lookup returns the cached tier for fingerprint if present and not
// expired. An expired entry is evicted lazily on this read.
func (c *ClassificationCache) Lookup(fingerprint string) (catalog.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return "", false
	}
	if time.Since(entry.InsertedAt) > cacheTTL {
		delete(c.entries, fingerprint)
		c.removeFromOrder(fingerprint)
		return "", false
	}
	return entry.Tier, true
}

// Insert records a classification result, evicting the oldest entry first
// if the cache is already at capacity.
func (c *ClassificationCache) Insert(fingerprint string, tier catalog.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists {
		if len(c.entries) >= cacheCapacity {
			c.evictOldestLocked()
		}
		c.order = append(c.order, fingerprint)
	}
	c.entries[fingerprint] = CacheEntry{
		Fingerprint: fingerprint,
		Tier:        tier,
		InsertedAt:  time.Now(),
	}
}

// Invalidate drops every cached entry. Wired to POST /reload.
func (c *ClassificationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry, cacheCapacity)
	c.order = nil
}

func (c *ClassificationCache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *ClassificationCache) removeFromOrder(fingerprint string) {
	for i, fp := range c.order {
		if fp == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
