package lru

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewSet[int](3)
	s.Add(1)
	s.Add(2)
	s.Add(3)

	// touch 1 so it's no longer the LRU entry
	assert.True(t, s.Contains(1))

	s.Add(4) // should evict 2, the now-least-recently-used entry

	assert.True(t, s.Contains(1))
	assert.False(t, s.Contains(2))
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(4))
	assert.Equal(t, 3, s.Len())
}

func TestMapGetPut(t *testing.T) {
	m := NewMap[string, int](2)
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3) // evicts "a"

	_, ok := m.Get("a")
	assert.False(t, ok)

	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSetConcurrentAccess(t *testing.T) {
	s := NewSet[int](64)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(i % 64)
			s.Contains(i % 64)
		}(i)
	}
	wg.Wait()
	assert.True(t, s.Len() <= 64)
}
