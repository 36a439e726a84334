package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/deadlock"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/timerpool"
)

// sleeper owns the deadline and cancellation wakeups of one blocking call.
// A fiber caller gets timer and context callbacks that unpark it; a
// goroutine caller selects on a pooled timer and ctx.Done directly.
type sleeper struct {
	self    *fiber.Fiber
	at      time.Time
	expired atomic.Bool

	timer   *time.Timer
	stopCtx func() bool

	// mu orders fire against release: once release returns, no callback
	// can still reach self.
	mu       sync.Mutex
	released bool
}

func newSleeper(ctx context.Context, self *fiber.Fiber, at time.Time) *sleeper {
	s := &sleeper{self: self, at: at}
	if self == nil {
		return s
	}
	if !at.IsZero() {
		s.timer = time.AfterFunc(time.Until(at), s.fire)
	}
	if ctx != nil && ctx.Done() != nil {
		s.stopCtx = context.AfterFunc(ctx, s.fire)
	}
	return s
}

func (s *sleeper) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.expired.Store(true)
	fiber.Unpark(s.self, nil)
}

// block waits on wake, the deadline or ctx. Goroutine callers only.
func (s *sleeper) block(ctx context.Context, wake <-chan struct{}) {
	var tc <-chan time.Time
	if !s.at.IsZero() {
		if s.timer == nil {
			s.timer = timerpool.AcquireUntil(s.at)
		}
		tc = s.timer.C
	}
	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case <-wake:
	case <-tc:
		s.expired.Store(true)
	case <-done:
		s.expired.Store(true)
	}
}

func (s *sleeper) release() {
	if s == nil {
		return
	}
	if s.self == nil {
		if s.timer != nil {
			timerpool.Release(s.timer)
		}
		return
	}
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.stopCtx != nil {
		s.stopCtx()
	}
}

// expiredErr reports why a blocking call must give up, if it must.
func expiredErr(ctx context.Context, at time.Time) error {
	if err := deadline.Err(ctx); err != nil {
		return err
	}
	if !at.IsZero() && !time.Now().Before(at) {
		return errs.ErrTimeout
	}
	return nil
}

type blocked struct {
	d   *deadlock.Detector
	tok deadlock.Token
}

func enterBlocked(info *fiber.WaitInfo) blocked {
	d := deadlock.Active()
	if d == nil {
		return blocked{}
	}
	return blocked{d: d, tok: d.Enter(info.Op + " on " + info.Object)}
}

func (b blocked) exit() {
	if b.d != nil {
		b.d.Exit(b.tok)
	}
}

func progress() {
	if d := deadlock.Active(); d != nil {
		d.Progress()
	}
}

// parker parks one send or recv waiter until its notification leaves
// Waiting, the channel generation moves past g0, or the sleeper expires.
type parker struct {
	s   *sleeper
	w   *waiter
	gen *atomic.Uint64
	g0  uint64
	bl  blocked
}

func (p *parker) done() bool {
	return p.w.notified.Load() != Waiting || p.gen.Load() != p.g0 || p.s.expired.Load()
}

func (p *parker) TryComplete(*fiber.Fiber, any) bool { return p.done() }

func (p *parker) Publish(f *fiber.Fiber, _ any) {
	f.SetWaiting(&p.w.info)
	p.bl = enterBlocked(&p.w.info)
}

func (p *parker) Unpublish(f *fiber.Fiber) {
	f.SetWaiting(nil)
	p.bl.exit()
	p.bl = blocked{}
}

func (p *parker) Park(ctx context.Context, _ *fiber.Fiber, _ any) {
	fiber.Park(ctx, func() bool { return !p.done() })
}

// block is the goroutine counterpart of sched.Wait.
func (p *parker) block(ctx context.Context, wake <-chan struct{}) {
	if p.done() {
		return
	}
	bl := enterBlocked(&p.w.info)
	p.s.block(ctx, wake)
	bl.exit()
}
