// Package safemap is a copy-on-write map for read-mostly registries.
// Readers never lock; every write copies the map and publishes it with a
// CAS, so writes are O(n) and should be rare.
package safemap

import (
	"maps"
	"sync/atomic"
	"unsafe"
)

type SafeMap[K comparable, V any] struct {
	_ cacheLinePadding

	data atomic.Pointer[map[K]V]
	_    [cacheLinePadSize - unsafe.Sizeof(atomic.Pointer[map[K]V]{})]byte
}

func New[K comparable, V any]() *SafeMap[K, V] {
	sm := &SafeMap[K, V]{}
	m := make(map[K]V)
	sm.data.Store(&m)
	return sm
}

// update applies fn to a private copy and publishes it. fn reports whether
// the copy changed; an unchanged copy is dropped.
func (s *SafeMap[K, V]) update(fn func(m map[K]V) bool) {
	for {
		old := s.data.Load()
		next := maps.Clone(*old)
		if next == nil {
			next = make(map[K]V)
		}
		if !fn(next) {
			return
		}
		if s.data.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *SafeMap[K, V]) Set(k K, v V) {
	s.update(func(m map[K]V) bool {
		m[k] = v
		return true
	})
}

func (s *SafeMap[K, V]) Store(k K, v V) {
	s.Set(k, v)
}

// SetIfAbsent stores v under k unless k is present. It returns the value
// now stored and whether v was the one stored.
func (s *SafeMap[K, V]) SetIfAbsent(k K, v V) (V, bool) {
	if cur, ok := s.Get(k); ok {
		return cur, false
	}
	stored := true
	s.update(func(m map[K]V) bool {
		if cur, ok := m[k]; ok {
			v, stored = cur, false
			return false
		}
		m[k], stored = v, true
		return true
	})
	return v, stored
}

func (s *SafeMap[K, V]) Get(k K) (V, bool) {
	val, ok := (*s.data.Load())[k]
	return val, ok
}

func (s *SafeMap[K, V]) Load(k K) (V, bool) {
	return s.Get(k)
}

func (s *SafeMap[K, V]) Delete(k K) {
	s.Take(k)
}

// Take removes k and returns the value it held.
func (s *SafeMap[K, V]) Take(k K) (V, bool) {
	var (
		val V
		ok  bool
	)
	s.update(func(m map[K]V) bool {
		val, ok = m[k]
		delete(m, k)
		return ok
	})
	return val, ok
}

func (s *SafeMap[K, V]) Len() int {
	return len(*s.data.Load())
}

// ForEach visits a snapshot of the map; f returning false stops the walk.
func (s *SafeMap[K, V]) ForEach(f func(K, V) bool) {
	for k, v := range *s.data.Load() {
		if !f(k, v) {
			return
		}
	}
}

// Drain empties the map and returns what it held.
func (s *SafeMap[K, V]) Drain() map[K]V {
	empty := make(map[K]V)
	return *s.data.Swap(&empty)
}
