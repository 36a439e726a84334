package channel

import (
	"fmt"

	"github.com/GoBlaze/blazert/errs"
)

// owned holds the hooks of an object pool channel. made is guarded by the
// channel mutex.
type owned[T any] struct {
	factory func() T
	reset   func(T)
	destroy func(T)
	made    int
}

// NewPool creates an object pool backed by a channel. Recv hands out a
// pooled item, or a new one from factory while fewer than capacity items
// exist; Send runs reset and returns the item to the pool. Free runs
// destroy on every pooled item.
func NewPool[T any](capacity int, factory func() T, reset, destroy func(T), opts ...Option) (*Chan[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("channel: pool capacity %d: %w", capacity, errs.ErrInvalidArgument)
	}
	if factory == nil {
		return nil, fmt.Errorf("channel: pool without factory: %w", errs.ErrInvalidArgument)
	}
	return newChan(capacity, &owned[T]{factory: factory, reset: reset, destroy: destroy}, opts)
}

// Made reports how many items the pool factory has created.
func (c *Chan[T]) Made() int {
	if c.own == nil {
		return 0
	}
	c.mu.Lock()
	n := c.own.made
	c.mu.Unlock()
	return n
}
