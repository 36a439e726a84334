package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/GoBlaze/blazert/errs"
)

// Slice is a slice value with a single owner. Only a Slice made by
// MakeSlice, and not derived with Sub, can be transferred with
// SendTakeSlice.
type Slice[E any] struct {
	items  []E
	unique bool
	sub    bool
}

// MakeSlice wraps items as a uniquely owned slice. The caller must not keep
// other references to items.
func MakeSlice[E any](items []E) Slice[E] {
	return Slice[E]{items: items, unique: true}
}

// Sub returns items[i:j]. The result shares storage with s and cannot be
// transferred.
func (s Slice[E]) Sub(i, j int) Slice[E] {
	return Slice[E]{items: s.items[i:j], sub: true}
}

func (s Slice[E]) Items() []E { return s.items }

func (s Slice[E]) Len() int { return len(s.items) }

// Transferable reports whether s may be handed over with SendTakeSlice.
func (s Slice[E]) Transferable() bool {
	return s.unique && !s.sub && s.items != nil
}

// SendTake sends *p and clears *p once the channel owns the value.
func SendTake[E any](ctx context.Context, c *Chan[*E], p **E) error {
	return sendTake(c, p, func(v *E) error { return c.Send(ctx, v) })
}

func TrySendTake[E any](c *Chan[*E], p **E) error {
	return sendTake(c, p, c.TrySend)
}

func TimedSendTake[E any](ctx context.Context, c *Chan[*E], p **E, at time.Time) error {
	return sendTake(c, p, func(v *E) error { return c.TimedSend(ctx, v, at) })
}

func sendTake[E any](c *Chan[*E], p **E, send func(*E) error) error {
	if p == nil || *p == nil {
		return fmt.Errorf("channel: send-take of a nil pointer: %w", errs.ErrInvalidArgument)
	}
	if !c.allowTake {
		return fmt.Errorf("channel: %s does not accept send-take: %w", c.name, errs.ErrInvalidArgument)
	}
	if err := send(*p); err != nil {
		return err
	}
	*p = nil
	return nil
}

// SendTakeSlice sends *s and resets *s once the channel owns the slice.
func SendTakeSlice[E any](ctx context.Context, c *Chan[Slice[E]], s *Slice[E]) error {
	return sendTakeSlice(c, s, func(v Slice[E]) error { return c.Send(ctx, v) })
}

func TrySendTakeSlice[E any](c *Chan[Slice[E]], s *Slice[E]) error {
	return sendTakeSlice(c, s, c.TrySend)
}

func TimedSendTakeSlice[E any](ctx context.Context, c *Chan[Slice[E]], s *Slice[E], at time.Time) error {
	return sendTakeSlice(c, s, func(v Slice[E]) error { return c.TimedSend(ctx, v, at) })
}

func sendTakeSlice[E any](c *Chan[Slice[E]], s *Slice[E], send func(Slice[E]) error) error {
	if s == nil || !s.Transferable() {
		return fmt.Errorf("channel: slice is not transferable: %w", errs.ErrInvalidArgument)
	}
	if !c.allowTake {
		return fmt.Errorf("channel: %s does not accept send-take: %w", c.name, errs.ErrInvalidArgument)
	}
	if err := send(*s); err != nil {
		return err
	}
	*s = Slice[E]{}
	return nil
}
