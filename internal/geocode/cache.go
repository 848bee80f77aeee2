package geocode

import (
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps recent truncated result lists keyed by normalised query.
type Cache struct {
	lru *expirable.LRU[uint64, []Place]
}

// NewCache returns a cache holding up to size queries for ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[uint64, []Place](size, nil, ttl)}
}

func cacheKey(query string) uint64 {
	return xxhash.Sum64String(strings.ToLower(strings.Join(strings.Fields(query), " ")))
}

// Get returns a copy of the cached places for query.
func (c *Cache) Get(query string) ([]Place, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(cacheKey(query))
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Put stores places for query.
func (c *Cache) Put(query string, places []Place) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(query), slices.Clone(places))
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
