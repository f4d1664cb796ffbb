// Package lru provides the two bounded-capacity caches the schema and
// query layers use for write deduplication and query-result caching
// (spec §4.3): a Set and a Map, both backed by
// github.com/hashicorp/golang-lru/v2 and safe for concurrent use from any
// number of writers and readers.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Set is a bounded-capacity set: Add evicts the least-recently-used entry
// once full.
type Set[K comparable] struct {
	c *lru.Cache[K, struct{}]
}

// NewSet creates a Set with the given capacity. Capacity must be positive.
func NewSet[K comparable](capacity int) *Set[K] {
	c, err := lru.New[K, struct{}](capacity)
	if err != nil {
		panic(err) // capacity <= 0, a configuration error caught at startup
	}
	return &Set[K]{c: c}
}

// Contains reports whether key is present, refreshing its recency.
func (s *Set[K]) Contains(key K) bool {
	_, ok := s.c.Get(key)
	return ok
}

// Add inserts key, evicting the least-recently-used entry if at capacity.
// Returns true if this call evicted an entry.
func (s *Set[K]) Add(key K) bool {
	return s.c.Add(key, struct{}{})
}

func (s *Set[K]) Len() int { return s.c.Len() }

// Map is a bounded-capacity key/value cache with the same eviction policy
// as Set.
type Map[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

func NewMap[K comparable, V any](capacity int) *Map[K, V] {
	c, err := lru.New[K, V](capacity)
	if err != nil {
		panic(err)
	}
	return &Map[K, V]{c: c}
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	return m.c.Get(key)
}

// Put inserts or updates key/value, evicting least-recently-used if full.
func (m *Map[K, V]) Put(key K, value V) bool {
	return m.c.Add(key, value)
}

func (m *Map[K, V]) Len() int { return m.c.Len() }
