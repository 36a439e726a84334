package channel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/GoBlaze/blazert/errs"
	"github.com/valyala/bytebufferpool"
)

// Raw is a channel of fixed-size byte records. The record size is given at
// creation or fixed by the first operation, and every later operation must
// use a buffer of exactly that size.
type Raw struct {
	c    *Chan[*bytebufferpool.ByteBuffer]
	size atomic.Int64
	bufs bytebufferpool.Pool
}

// NewRaw creates a byte record channel. A size of zero leaves the record
// size to the first operation.
func NewRaw(capacity, size int, opts ...Option) (*Raw, error) {
	if size < 0 {
		return nil, fmt.Errorf("channel: negative record size %d: %w", size, errs.ErrInvalidArgument)
	}
	r := &Raw{}
	opts = append(opts, WithDestroy(r.bufs.Put))
	c, err := New[*bytebufferpool.ByteBuffer](capacity, opts...)
	if err != nil {
		return nil, err
	}
	r.c = c
	r.size.Store(int64(size))
	return r, nil
}

// ElemSize is the record size, or zero while it is unset.
func (r *Raw) ElemSize() int { return int(r.size.Load()) }

func (r *Raw) check(n int) error {
	if n == 0 {
		return fmt.Errorf("channel: empty record buffer: %w", errs.ErrInvalidArgument)
	}
	if r.size.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if size := r.size.Load(); int64(n) != size {
		return fmt.Errorf("channel: record of %d bytes on a %d byte channel: %w", n, size, errs.ErrInvalidArgument)
	}
	return nil
}

func (r *Raw) wrap(p []byte) (*bytebufferpool.ByteBuffer, error) {
	if err := r.check(len(p)); err != nil {
		return nil, err
	}
	b := r.bufs.Get()
	_, _ = b.Write(p)
	return b, nil
}

func (r *Raw) unwrap(b *bytebufferpool.ByteBuffer, dst []byte) {
	copy(dst, b.B)
	r.bufs.Put(b)
}

func (r *Raw) send(p []byte, fn func(*bytebufferpool.ByteBuffer) error) error {
	b, err := r.wrap(p)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		r.bufs.Put(b)
		return err
	}
	return nil
}

func (r *Raw) Send(ctx context.Context, p []byte) error {
	return r.send(p, func(b *bytebufferpool.ByteBuffer) error { return r.c.Send(ctx, b) })
}

func (r *Raw) TrySend(p []byte) error {
	return r.send(p, r.c.TrySend)
}

func (r *Raw) TimedSend(ctx context.Context, p []byte, at time.Time) error {
	return r.send(p, func(b *bytebufferpool.ByteBuffer) error { return r.c.TimedSend(ctx, b, at) })
}

func (r *Raw) recv(dst []byte, fn func() (*bytebufferpool.ByteBuffer, error)) error {
	if err := r.check(len(dst)); err != nil {
		return err
	}
	b, err := fn()
	if err != nil {
		return err
	}
	r.unwrap(b, dst)
	return nil
}

// Recv copies the next record into dst.
func (r *Raw) Recv(ctx context.Context, dst []byte) error {
	return r.recv(dst, func() (*bytebufferpool.ByteBuffer, error) { return r.c.Recv(ctx) })
}

func (r *Raw) TryRecv(dst []byte) error {
	return r.recv(dst, r.c.TryRecv)
}

func (r *Raw) TimedRecv(ctx context.Context, dst []byte, at time.Time) error {
	return r.recv(dst, func() (*bytebufferpool.ByteBuffer, error) { return r.c.TimedRecv(ctx, at) })
}

func (r *Raw) Close() error { return r.c.Close() }

func (r *Raw) CloseWithError(err error) error { return r.c.CloseWithError(err) }

func (r *Raw) RxCloseWithError(err error) error { return r.c.RxCloseWithError(err) }

func (r *Raw) Len() int { return r.c.Len() }

func (r *Raw) Cap() int { return r.c.Cap() }

func (r *Raw) Stats() Stats { return r.c.Stats() }

// Free releases every buffered record.
func (r *Raw) Free() { r.c.Free() }
