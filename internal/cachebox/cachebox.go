// Package cachebox provides the process-wide TTL key/value store used to
// relay one-shot request payloads and launch state across independent HTTP
// round-trips.
package cachebox

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the minimal contract the relay needs from a cache: concurrent
// get/set with per-entry TTL and last-writer-wins semantics per key.
type Store interface {
	Set(key string, value []byte, ttl time.Duration)
	Get(key string) ([]byte, bool)
	Delete(key string)
}

// MemoryStore is an in-process Store backed by patrickmn/go-cache. Expired
// entries are purged in the background every 10 minutes; Get never returns
// an expired entry regardless of the purge cycle.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore returns an empty store with no default expiration; every
// entry carries its own TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) {
	s.c.Set(key, value, ttl)
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (s *MemoryStore) Delete(key string) {
	s.c.Delete(key)
}
