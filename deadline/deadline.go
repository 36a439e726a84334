// Package deadline scopes cancellation and absolute deadlines over
// context.Context. Scopes nest: pushing a scope derives a context, and the
// innermost scope wins for Current.
package deadline

import (
	"context"
	"errors"
	"time"

	"github.com/GoBlaze/blazert/errs"
)

type scopeKey struct{}

// Scope is a pushed deadline descriptor.
type Scope struct {
	parent *Scope
	at     time.Time
	cancel context.CancelCauseFunc
	stop   context.CancelFunc
}

// Push derives a context carrying a new scope. A zero at means no
// deadline: the scope can only be cancelled.
func Push(ctx context.Context, at time.Time) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Scope{parent: Current(ctx), at: at}
	ctx, s.cancel = context.WithCancelCause(ctx)
	if !at.IsZero() {
		ctx, s.stop = context.WithDeadlineCause(ctx, at, errs.ErrTimeout)
	}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// Cancel sets the scope's cancel flag. Operations parked under the scope
// wake and return errs.ErrCancelled.
func (s *Scope) Cancel() {
	if s != nil {
		s.cancel(errs.ErrCancelled)
	}
}

// Expire ends the scope as if its deadline had passed. Operations parked
// under the scope wake and return errs.ErrTimeout.
func (s *Scope) Expire() {
	if s != nil {
		s.cancel(errs.ErrTimeout)
	}
}

// Pop releases the scope. Operations begun on its context afterwards see
// it as cancelled.
func (s *Scope) Pop() {
	if s == nil {
		return
	}
	if s.stop != nil {
		s.stop()
	}
	s.cancel(errs.ErrCancelled)
}

// At is the scope's deadline, zero if none.
func (s *Scope) At() time.Time { return s.at }

// Parent is the enclosing scope, if any.
func (s *Scope) Parent() *Scope { return s.parent }

// Current returns the innermost scope in ctx.
func Current(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Err maps the state of ctx to errs.ErrTimeout or errs.ErrCancelled, or
// nil while ctx is live.
func Err(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	err := ctx.Err()
	if err == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errs.ErrTimeout), errors.Is(cause, errs.ErrCancelled):
		return cause
	case errors.Is(err, context.DeadlineExceeded):
		return errs.ErrTimeout
	}
	return errs.ErrCancelled
}

// Earliest returns the earlier of at and the deadline of ctx. A zero
// result means neither is set.
func Earliest(ctx context.Context, at time.Time) time.Time {
	if ctx == nil {
		return at
	}
	d, ok := ctx.Deadline()
	if !ok {
		return at
	}
	if at.IsZero() || d.Before(at) {
		return d
	}
	return at
}
