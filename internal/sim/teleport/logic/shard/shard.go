package shard

import "sync"

const defaultShards = 32

// Map is a mutex-striped map. Keys that hash to different stripes never contend.
type Map[K comparable, V any] struct {
	hash   func(K) uint64
	stripe []stripe[K, V]
}

type stripe[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

func New[K comparable, V any](hash func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{hash: hash, stripe: make([]stripe[K, V], defaultShards)}
	for i := range m.stripe {
		m.stripe[i].m = map[K]V{}
	}
	return m
}

func (m *Map[K, V]) of(k K) *stripe[K, V] {
	return &m.stripe[m.hash(k)%uint64(len(m.stripe))]
}

func (m *Map[K, V]) Load(k K) (V, bool) {
	s := m.of(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	return v, ok
}

func (m *Map[K, V]) Store(k K, v V) {
	s := m.of(k)
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

func (m *Map[K, V]) Delete(k K) {
	s := m.of(k)
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// Update runs fn under the key's stripe lock. fn receives the current value (zero and false
// when absent) and returns the new value plus whether to keep it; keep=false deletes the key.
func (m *Map[K, V]) Update(k K, fn func(v V, ok bool) (V, bool)) {
	s := m.of(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[k]
	next, keep := fn(cur, ok)
	if keep {
		s.m[k] = next
	} else if ok {
		delete(s.m, k)
	}
}

// View runs fn under the key's stripe lock without modifying the map.
func (m *Map[K, V]) View(k K, fn func(v V, ok bool)) {
	s := m.of(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	fn(v, ok)
}

func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.stripe {
		s := &m.stripe[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Range visits every entry stripe by stripe. fn must not call back into m.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for i := range m.stripe {
		s := &m.stripe[i]
		s.mu.Lock()
		for k, v := range s.m {
			if !fn(k, v) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}
