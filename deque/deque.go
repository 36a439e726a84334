// Package deque is a fixed-size Chase-Lev work-stealing deque.
//
// The owner pushes and pops at bottom; thieves steal at top. Go's
// sync/atomic operations are sequentially consistent, so every fence the
// protocol calls for is carried by the atomic access that follows it.
package deque

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/GoBlaze/blazert/constants"
)

// ErrFull is returned by Push when the deque is at capacity.
var ErrFull = errors.New("deque: full")

// Deque holds pointers to T. Push and Pop may only be called by the owner.
type Deque[T any] struct {
	top atomic.Int64
	_   [constants.CacheLinePadSize - unsafe.Sizeof(atomic.Int64{})]byte //nolint:unused
	bot atomic.Int64
	_   [constants.CacheLinePadSize - unsafe.Sizeof(atomic.Int64{})]byte //nolint:unused

	mask int64
	buf  []atomic.Pointer[T]
}

// New returns a deque with capacity rounded up to a power of two.
func New[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	n := int64(constants.NextPowerOfTwo(uint64(capacity)))
	return &Deque[T]{mask: n - 1, buf: make([]atomic.Pointer[T], n)}
}

// Push adds x at the bottom.
func (d *Deque[T]) Push(x *T) error {
	b := d.bot.Load()
	t := d.top.Load()
	if b-t > d.mask {
		return ErrFull
	}
	d.buf[b&d.mask].Store(x)
	d.bot.Store(b + 1)
	return nil
}

// Pop removes the most recently pushed element, or returns nil.
func (d *Deque[T]) Pop() *T {
	b := d.bot.Load() - 1
	d.bot.Store(b)
	t := d.top.Load()
	if t > b {
		d.bot.Store(t)
		return nil
	}
	x := d.buf[b&d.mask].Load()
	if t == b {
		// Last element: race the thieves for it.
		if !d.top.CompareAndSwap(t, t+1) {
			x = nil
		}
		d.bot.Store(t + 1)
	}
	return x
}

// Steal removes the oldest element, or returns nil when the deque is empty
// or another thief won the race.
func (d *Deque[T]) Steal() *T {
	t := d.top.Load()
	b := d.bot.Load()
	if t >= b {
		return nil
	}
	x := d.buf[t&d.mask].Load()
	if !d.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return x
}

// Len is a snapshot of the occupancy.
func (d *Deque[T]) Len() int {
	n := d.bot.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the capacity.
func (d *Deque[T]) Cap() int { return int(d.mask + 1) }
