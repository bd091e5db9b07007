// Package cache provides a small byte-oriented cache abstraction with
// memory and redis backends. The session store and the login state flow
// sit on top of it; the memory backend keeps dev and tests self-contained.
package cache

import "time"

// Cache is the minimal surface needed by the session and login flows.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool)

	// Set stores value under key with the given TTL. A zero TTL uses the
	// backend default.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes key. Removing an absent key is a no-op.
	Delete(key string)
}
