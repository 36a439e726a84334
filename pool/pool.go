package pool

import (
	"sync"
	"unsafe"
)

type No struct{}

func (*No) Lock()   {}
func (*No) Unlock() {}

// Pool represents a pool of objects with type T.
type Pool[T any] struct {
	_ No // nolint:structcheck,unused

	items *sync.Pool
	reset func(T)
	_     [cacheLinePadSize - (unsafe.Sizeof(&sync.Pool{})+unsafe.Sizeof(uintptr(0)))%cacheLinePadSize]byte
}

// NewPool creates a new Pool[T] with a function that creates new objects.
func NewPool[T any](newFunc func() T) *Pool[T] {
	return NewPoolWithReset(newFunc, nil)
}

// NewPoolWithReset is NewPool with a hook run on every object handed back
// through Put, so pooled objects never pin memory they referenced.
func NewPoolWithReset[T any](newFunc func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		items: &sync.Pool{
			New: func() any {
				return newFunc()
			},
		},
		reset: reset,
	}
	return p
}

// Get returns an object from the pool, creating a new one if necessary.
func (p *Pool[T]) Get() T {
	return p.items.Get().(T)
}

// Put adds an object to the pool.
func (p *Pool[T]) Put(x T) {
	if p.reset != nil {
		p.reset(x)
	}
	p.items.Put(x)
}
