package sched

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
)

const (
	joinBudgetInit = 1024
	joinBudgetMin  = 64
	joinBudgetMax  = 16384
)

// budget adapts the join spin limit: completions seen while spinning are
// folded into an EMA with weight 1/8 and the next limit is twice the EMA.
type budget struct {
	ema   atomic.Int64
	limit atomic.Int64
}

func (b *budget) get() int64 {
	if l := b.limit.Load(); l != 0 {
		return l
	}
	return joinBudgetInit
}

func (b *budget) observe(spins int64) {
	ema := b.ema.Load()
	if b.limit.Load() == 0 {
		ema = joinBudgetInit / 2
	}
	ema += (spins - ema) / 8
	b.ema.Store(ema)
	b.limit.Store(min(max(2*ema, joinBudgetMin), joinBudgetMax))
}

// Join waits for f and returns what its body returned, then recycles f.
// A fiber caller spins for its worker's adaptive budget and then yields
// until f is done; a goroutine caller spins on a shared budget and then
// blocks. If ctx ends first, Join returns errs.ErrTimeout or
// errs.ErrCancelled and f is left untouched.
func (s *Scheduler) Join(ctx context.Context, f *fiber.Fiber) (any, error) {
	if f == nil {
		return nil, fmt.Errorf("sched: join of nil fiber: %w", errs.ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	self := fiber.FromContext(ctx)
	if self == f {
		return nil, fmt.Errorf("sched: fiber joining itself: %w", errs.ErrInvalidArgument)
	}

	if !f.Done() {
		b := &s.joinBudget
		if self != nil {
			if w, ok := self.Worker().(*worker); ok && w.s == s {
				b = &w.budget
			}
		}
		limit := b.get()
		var spins int64
		for spins < limit && !f.Done() {
			spins++
		}
		if f.Done() {
			b.observe(spins)
		} else if err := joinSlow(ctx, self, f); err != nil {
			return nil, err
		}
	}

	res, err := f.Result()
	fiber.Release(f)
	return res, err
}

func joinSlow(ctx context.Context, self, f *fiber.Fiber) error {
	if self != nil {
		for !f.Done() {
			if err := deadline.Err(ctx); err != nil {
				return err
			}
			fiber.YieldGlobal(ctx)
		}
		return nil
	}
	select {
	case <-f.DoneChan():
	case <-ctx.Done():
		if !f.Done() {
			return deadline.Err(ctx)
		}
	}
	for !f.Done() {
		runtime.Gosched()
	}
	return nil
}
