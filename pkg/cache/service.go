package cache

import "time"

// CacheService defines the behavior for caching mechanisms
type CacheService interface {
	// Get returns the value and true when the key is present and not expired.
	Get(key string) (any, bool)

	// Set adds a value to the cache with a duration
	Set(key string, value any, duration time.Duration)

	// Delete removes a value from the cache
	Delete(key string)

	// Flush removes all items
	Flush()
}
