package cache

import "time"

// CacheService is a process-local key/value cache with per-item TTL.
type CacheService interface {
	// Get returns the value and true on a hit, nil and false otherwise.
	Get(key string) (any, bool)

	// Set stores value for duration. A zero duration uses the cache default.
	Set(key string, value any, duration time.Duration)

	Delete(key string)

	// Flush drops every item.
	Flush()
}
