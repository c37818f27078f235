package rules

import "time"

// RulesCache caches the ordered rule list of one rule set
// The version counter moves on every invalidation so callers can tell whether
// a computed result was produced from the current rule list
type RulesCache interface {
	// Get returns the cached rules, or false on a miss or expiry
	Get() ([]*Rule, bool)

	// Set stores the ordered rules
	Set(rules []*Rule)

	// Invalidate clears the cache and bumps the version
	Invalidate()

	// Version identifies the current rule list generation
	Version() uint64
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns defaults for rule caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
