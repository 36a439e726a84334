package blazert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/mutex"
)

// Nursery is a structured scope for fibers. Children run under the
// nursery's deadline scope; Wait joins every child and only then closes
// the channels registered with Closing, so no child can race a send
// against the close.
type Nursery struct {
	noCopy No //nolint:unused,structcheck

	rt    *Runtime
	ctx   context.Context
	scope *deadline.Scope

	mu      mutex.Spin
	kids    []*fiber.Fiber
	closers []Closer
	timer   *time.Timer
	waited  bool
}

// NewNursery opens a nursery on rt, or on Default when rt is nil.
func NewNursery(rt *Runtime) *Nursery {
	return NewNurseryContext(context.Background(), rt)
}

// NewNurseryContext opens a nursery whose scope is nested in ctx.
func NewNurseryContext(ctx context.Context, rt *Runtime) *Nursery {
	if rt == nil {
		rt = Default()
	}
	n := &Nursery{rt: rt}
	n.ctx, n.scope = deadline.Push(ctx, time.Time{})
	return n
}

// Context is the scope children run under. Blocking operations begun on
// it end with errs.ErrCancelled after Cancel and errs.ErrTimeout once the
// deadline passes.
func (n *Nursery) Context() context.Context { return n.ctx }

// Spawn starts fn(ctx, arg) as a child fiber.
func (n *Nursery) Spawn(fn fiber.Entry, arg any, opts ...fiber.Option) error {
	if fn == nil {
		return fmt.Errorf("blazert: nil nursery child: %w", errs.ErrInvalidArgument)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.waited {
		return fmt.Errorf("blazert: spawn into a finished nursery: %w", errs.ErrInvalidArgument)
	}
	f, err := n.rt.Spawn(n.ctx, fn, arg, opts...)
	if err != nil {
		return err
	}
	n.kids = append(n.kids, f)
	return nil
}

// Go starts fn as a child fiber.
func (n *Nursery) Go(fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("blazert: nil nursery child: %w", errs.ErrInvalidArgument)
	}
	return n.Spawn(func(ctx context.Context, _ any) (any, error) { return nil, fn(ctx) }, nil)
}

// Closing registers c to be closed by Wait after every child has joined.
func (n *Nursery) Closing(c Closer) {
	if c == nil {
		return
	}
	n.mu.Lock()
	n.closers = append(n.closers, c)
	n.mu.Unlock()
}

// Cancel wakes every child parked under the nursery with errs.ErrCancelled.
func (n *Nursery) Cancel() {
	n.scope.Cancel()
}

// SetDeadline expires the nursery scope at t. A later call replaces an
// earlier deadline that has not fired yet.
func (n *Nursery) SetDeadline(t time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	d := time.Until(t)
	if d <= 0 {
		n.scope.Expire()
		return
	}
	n.timer = time.AfterFunc(d, n.scope.Expire)
}

// Cancelled reports whether the scope has been cancelled or has expired.
func (n *Nursery) Cancelled() bool { return n.ctx.Err() != nil }

// Wait joins every child, then closes the registered channels, then
// releases the scope. It returns the children's errors combined. Children
// spawned by other children before Wait returns are joined too; Spawn
// fails afterwards.
func (n *Nursery) Wait() error {
	return n.WaitContext(context.Background())
}

// WaitContext is Wait for a caller identified by ctx: a fiber caller yields
// to its worker while children run instead of blocking it. Cancellation of
// ctx does not cut the wait short.
func (n *Nursery) WaitContext(ctx context.Context) error {
	var err error
	waitCtx := context.WithoutCancel(ctx)
	for {
		n.mu.Lock()
		kids := n.kids
		n.kids = nil
		if len(kids) == 0 {
			n.waited = true
			n.mu.Unlock()
			break
		}
		n.mu.Unlock()
		for _, f := range kids {
			if _, jerr := n.rt.Join(waitCtx, f); jerr != nil {
				err = multierr.Append(err, jerr)
			}
		}
	}

	n.mu.Lock()
	closers := n.closers
	n.closers = nil
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
	for _, c := range closers {
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	n.scope.Pop()
	return err
}
