package gossip

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenCacheSize bounds the per-node seen-message cache.
const DefaultSeenCacheSize = 1024

// SeenCache remembers block hashes and transaction ids a node has already
// handled so that re-broadcast happens only on first acceptance. Without
// it, flooding between mutually connected peers never terminates.
type SeenCache struct {
	cache *lru.Cache[string, struct{}]
}

func NewSeenCache(size int) (*SeenCache, error) {
	if size <= 0 {
		size = DefaultSeenCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &SeenCache{cache: cache}, nil
}

// FirstSeen records the id and reports whether it was new.
func (s *SeenCache) FirstSeen(id string) bool {
	if _, ok := s.cache.Get(id); ok {
		return false
	}
	s.cache.Add(id, struct{}{})
	return true
}

// Contains reports whether the id has been seen, without recording it.
func (s *SeenCache) Contains(id string) bool {
	_, ok := s.cache.Get(id)
	return ok
}
