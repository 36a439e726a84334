package channel

import (
	"context"
	"time"
)

// Tx is the sending end of a channel.
type Tx[T any] struct {
	c *Chan[T]
}

// Rx is the receiving end of a channel.
type Rx[T any] struct {
	c *Chan[T]
}

// Pair creates a channel and returns its two ends.
func Pair[T any](capacity int, opts ...Option) (Tx[T], Rx[T], error) {
	c, err := New[T](capacity, opts...)
	if err != nil {
		return Tx[T]{}, Rx[T]{}, err
	}
	return c.Tx(), c.Rx(), nil
}

func (c *Chan[T]) Tx() Tx[T] { return Tx[T]{c: c} }

func (c *Chan[T]) Rx() Rx[T] { return Rx[T]{c: c} }

func (t Tx[T]) Send(ctx context.Context, v T) error { return t.c.Send(ctx, v) }

func (t Tx[T]) TrySend(v T) error { return t.c.TrySend(v) }

func (t Tx[T]) TimedSend(ctx context.Context, v T, at time.Time) error {
	return t.c.TimedSend(ctx, v, at)
}

func (t Tx[T]) Close() error { return t.c.Close() }

func (t Tx[T]) CloseWithError(err error) error { return t.c.CloseWithError(err) }

func (t Tx[T]) SendCase(v T) Case { return t.c.SendCase(v) }

func (t Tx[T]) Len() int { return t.c.Len() }

func (t Tx[T]) Cap() int { return t.c.Cap() }

func (r Rx[T]) Recv(ctx context.Context) (T, error) { return r.c.Recv(ctx) }

func (r Rx[T]) TryRecv() (T, error) { return r.c.TryRecv() }

func (r Rx[T]) TimedRecv(ctx context.Context, at time.Time) (T, error) {
	return r.c.TimedRecv(ctx, at)
}

// Close closes the receiving end; see Chan.RxCloseWithError.
func (r Rx[T]) Close() error { return r.c.RxCloseWithError(nil) }

func (r Rx[T]) CloseWithError(err error) error { return r.c.RxCloseWithError(err) }

func (r Rx[T]) RecvCase(dst *T) Case { return r.c.RecvCase(dst) }

func (r Rx[T]) RecvCaseOK(dst *T, ok *bool) Case { return r.c.RecvCaseOK(dst, ok) }

func (r Rx[T]) Len() int { return r.c.Len() }

func (r Rx[T]) Cap() int { return r.c.Cap() }
