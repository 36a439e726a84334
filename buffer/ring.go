// Package buffer holds the classical array ring used by channels that do
// not qualify for the lock-free queue. A Ring is not safe for concurrent
// use; callers hold the channel mutex.
package buffer

import "errors"

var ErrTooLarge = errors.New("buffer.Ring: too large")

const maxInt = int(^uint(0) >> 1)

// Ring is a fixed-capacity FIFO of T.
type Ring[T any] struct {
	buf   []T
	head  int
	tail  int
	count int
}

// NewRing returns a ring holding exactly capacity items. A zero capacity
// ring is always both empty and full.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 0 {
		panic("buffer.NewRing: negative capacity")
	}
	if capacity == maxInt {
		return nil, ErrTooLarge
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

func (r *Ring[T]) Empty() bool { return r.count == 0 }

func (r *Ring[T]) Full() bool { return r.count == len(r.buf) }

// Push appends v and reports whether there was room.
func (r *Ring[T]) Push(v T) bool {
	if r.Full() {
		return false
	}
	r.buf[r.tail] = v
	r.tail++
	if r.tail == len(r.buf) {
		r.tail = 0
	}
	r.count++
	return true
}

// Pop removes the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	r.count--
	return v, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

// Drain pops every item, oldest first, into fn.
func (r *Ring[T]) Drain(fn func(T)) {
	for {
		v, ok := r.Pop()
		if !ok {
			return
		}
		if fn != nil {
			fn(v)
		}
	}
}

// Reset empties the ring and drops the backing array.
func (r *Ring[T]) Reset() {
	r.buf = nil
	r.head, r.tail, r.count = 0, 0, 0
}
