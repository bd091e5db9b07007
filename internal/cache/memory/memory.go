// Package memory backs the cache interface with an in-process go-cache
// instance. It keeps dev and tests free of external services.
package memory

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const janitorInterval = time.Minute

// Store is the in-memory cache backend. Like the redis backend it can
// namespace its keys with a prefix, so both backends behave the same
// when several stores share one cache.
type Store struct {
	c      *gocache.Cache
	prefix string
}

func New(defaultTTL time.Duration) *Store {
	return NewWithPrefix(defaultTTL, "")
}

func NewWithPrefix(defaultTTL time.Duration, prefix string) *Store {
	return &Store{
		c:      gocache.New(defaultTTL, janitorInterval),
		prefix: prefix,
	}
}

func (s *Store) Get(k string) ([]byte, bool) {
	v, ok := s.c.Get(s.prefix + k)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (s *Store) Set(k string, v []byte, ttl time.Duration) {
	s.c.Set(s.prefix+k, v, ttl)
}

func (s *Store) Delete(k string) {
	s.c.Delete(s.prefix + k)
}

// Purge drops every entry. Tests use it between cases.
func (s *Store) Purge() {
	s.c.Flush()
}
