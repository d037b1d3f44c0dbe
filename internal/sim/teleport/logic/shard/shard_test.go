package shard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intHash(k int) uint64 { return uint64(k) }

func TestMap_UpdateKeepAndDrop(t *testing.T) {
	m := New[int, int](intHash)

	m.Update(7, func(v int, ok bool) (int, bool) {
		assert.False(t, ok)
		return v + 1, true
	})
	v, ok := m.Load(7)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Update(7, func(v int, ok bool) (int, bool) { return 0, false })
	_, ok = m.Load(7)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMap_ConcurrentDisjointKeys(t *testing.T) {
	m := New[int, int](intHash)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := w*1000 + i
				m.Store(k, i)
				if i%2 == 0 {
					m.Delete(k)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*500, m.Len())

	seen := 0
	m.Range(func(k, v int) bool {
		seen++
		return true
	})
	assert.Equal(t, 8*500, seen)
}
