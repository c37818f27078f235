package rules

import (
	"sync"
	"time"
)

// InMemoryRulesCache is an in-memory RulesCache
// Thread-safe for concurrent access
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	config   CacheConfig
	version  uint64
	valid    bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns deep copies of the cached rules
func (c *InMemoryRulesCache) Get() ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil, false
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil, false
	}

	// Copy so callers can mutate what they get
	out := make([]*Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Clone()
	}
	return out, true
}

// Set stores copies of rules
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	for i, r := range rules {
		c.rules[i] = r.Clone()
	}
	c.cachedAt = time.Now()
	c.valid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
	c.version++
}

// Version returns the rule list generation
func (c *InMemoryRulesCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}
