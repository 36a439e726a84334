package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/GoBlaze/blazert/config"
	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/metrics"
	"github.com/GoBlaze/blazert/sched"
)

// Case is one arm of a select. Build cases with SendCase, RecvCase and
// RecvCaseOK.
type Case interface {
	// try attempts the operation without waiting. It reports false when
	// the operation would block.
	try() (bool, error)
	generation() uint64
	// register publishes w on the channel and nudges one parked partner.
	register(w *waiter, b *batch)
	unregister(w *waiter)
	// delivered runs after a counterpart completed w by handoff.
	delivered()
	name() string
}

type sendCase[T any] struct {
	c *Chan[T]
	v T
}

// SendCase is a select arm that sends v.
func (c *Chan[T]) SendCase(v T) Case { return &sendCase[T]{c: c, v: v} }

func (s *sendCase[T]) try() (bool, error) {
	err := s.c.send(nil, &s.v, time.Time{}, false)
	if errors.Is(err, errs.ErrWouldBlock) {
		return false, nil
	}
	return true, err
}

func (s *sendCase[T]) generation() uint64 { return s.c.gen.Load() }

func (s *sendCase[T]) register(w *waiter, b *batch) {
	c := s.c
	w.elem = unsafe.Pointer(&s.v)
	w.send = true
	c.mu.Lock()
	c.sendq.push(w)
	if p := c.recvq.dequeueSignal(w.group); p != nil {
		c.wake(p, Signal, b)
	}
	c.syncFlags()
	c.mu.Unlock()
}

func (s *sendCase[T]) unregister(w *waiter) {
	c := s.c
	c.mu.Lock()
	c.sendq.remove(w)
	c.syncFlags()
	c.mu.Unlock()
}

func (s *sendCase[T]) delivered() {}

func (s *sendCase[T]) name() string { return s.c.name }

type recvCase[T any] struct {
	c   *Chan[T]
	dst *T
	ok  *bool
}

// RecvCase is a select arm that receives into dst. A nil dst discards the
// value.
func (c *Chan[T]) RecvCase(dst *T) Case { return c.RecvCaseOK(dst, nil) }

// RecvCaseOK is RecvCase that also sets *ok to whether a value arrived, as
// opposed to the channel reporting its close.
func (c *Chan[T]) RecvCaseOK(dst *T, ok *bool) Case {
	if dst == nil {
		dst = new(T)
	}
	return &recvCase[T]{c: c, dst: dst, ok: ok}
}

func (r *recvCase[T]) try() (bool, error) {
	err := r.c.recv(nil, r.dst, time.Time{}, false)
	if errors.Is(err, errs.ErrWouldBlock) {
		return false, nil
	}
	r.setOK(err == nil)
	return true, err
}

func (r *recvCase[T]) setOK(ok bool) {
	if r.ok != nil {
		*r.ok = ok
	}
}

func (r *recvCase[T]) generation() uint64 { return r.c.gen.Load() }

func (r *recvCase[T]) register(w *waiter, b *batch) {
	c := r.c
	w.elem = unsafe.Pointer(r.dst)
	w.send = false
	c.mu.Lock()
	c.recvq.push(w)
	if p := c.sendq.dequeueSignal(w.group); p != nil {
		c.wake(p, Signal, b)
	}
	c.syncFlags()
	c.mu.Unlock()
}

func (r *recvCase[T]) unregister(w *waiter) {
	c := r.c
	c.mu.Lock()
	c.recvq.remove(w)
	c.syncFlags()
	c.mu.Unlock()
}

func (r *recvCase[T]) delivered() { r.setOK(true) }

func (r *recvCase[T]) name() string { return r.c.name }

// selectSeq rotates the first case tried so no case is always preferred.
var selectSeq atomic.Uint64

// Select waits until one case can proceed, runs it and returns its index.
// A case whose channel is closed is chosen with the close error.
func Select(ctx context.Context, cases ...Case) (int, error) {
	return doSelect(ctx, time.Time{}, true, cases)
}

// TrySelect runs a ready case if there is one and otherwise returns -1 and
// errs.ErrWouldBlock.
func TrySelect(cases ...Case) (int, error) {
	return doSelect(nil, time.Time{}, false, cases)
}

// TimedSelect is Select that gives up with errs.ErrTimeout at at.
func TimedSelect(ctx context.Context, at time.Time, cases ...Case) (int, error) {
	return doSelect(ctx, at, true, cases)
}

func doSelect(ctx context.Context, at time.Time, block bool, cases []Case) (int, error) {
	n := len(cases)
	if n == 0 {
		return -1, fmt.Errorf("channel: select without cases: %w", errs.ErrInvalidArgument)
	}
	for i, cs := range cases {
		if cs == nil {
			return -1, fmt.Errorf("channel: select case %d is nil: %w", i, errs.ErrInvalidArgument)
		}
	}
	timing := config.Get().ChannelTiming
	if timing {
		defer metrics.Default().ObserveSince(metrics.OpSelect, time.Now())
	}

	self := fiber.FromContext(ctx)
	at = deadline.Earliest(ctx, at)
	gens := make([]uint64, n)
	nodes := make([]*waiter, n)

	var s *sleeper
	defer func() { s.release() }()

	for {
		// Generations are read before trying so that any change made
		// after a failed try keeps the select from parking.
		for i, cs := range cases {
			gens[i] = cs.generation()
		}
		start := int(selectSeq.Add(1) % uint64(n))
		for k := 0; k < n; k++ {
			i := (start + k) % n
			if ok, err := cases[i].try(); ok {
				return i, err
			}
		}
		if !block {
			return -1, errs.ErrWouldBlock
		}
		if err := expiredErr(ctx, at); err != nil {
			return -1, err
		}
		if s == nil {
			s = newSleeper(ctx, self, at)
		}

		g := &group{fiber: self}
		g.winner.Store(-1)
		b := batch{from: self, deferred: true}
		for i, cs := range cases {
			w := getWaiter(self, nil, false)
			w.group = g
			w.index = i
			w.info = fiber.WaitInfo{Object: cs.name(), Op: "select"}
			cs.register(w, &b)
			nodes[i] = w
		}
		b.release()

		if timing {
			metrics.Default().Parked(metrics.OpSelect)
		}
		sw := &selectWait{g: g, s: s, cases: cases, gens: gens, info: nodes[0].info}
		if self != nil {
			_, _ = sched.Wait(ctx, sw, nil)
		} else {
			sw.block(ctx)
		}

		// Close the group before unlinking so no counterpart can complete
		// a node after this point.
		abandoned := g.winner.CompareAndSwap(-1, -2)
		for i, cs := range cases {
			cs.unregister(nodes[i])
		}
		k := int(g.winner.Load())
		var note notification
		if !abandoned {
			note = nodes[k].notified.Load()
		}
		for i, w := range nodes {
			waiters.Put(w)
			nodes[i] = nil
		}
		if !abandoned {
			if note != Data {
				panic("BUG: select won without a handoff")
			}
			cases[k].delivered()
			progress()
			return k, nil
		}
	}
}

// selectWait parks a select until a case completes, a partner signals,
// any involved channel changes or the deadline passes.
type selectWait struct {
	g     *group
	s     *sleeper
	cases []Case
	gens  []uint64
	info  fiber.WaitInfo
	bl    blocked
}

func (sw *selectWait) done() bool {
	if sw.g.winner.Load() != -1 || sw.g.signaled.Load() != 0 || sw.s.expired.Load() {
		return true
	}
	for i, cs := range sw.cases {
		if cs.generation() != sw.gens[i] {
			return true
		}
	}
	return false
}

func (sw *selectWait) TryComplete(*fiber.Fiber, any) bool { return sw.done() }

func (sw *selectWait) Publish(f *fiber.Fiber, _ any) {
	f.SetWaiting(&sw.info)
	sw.bl = enterBlocked(&sw.info)
}

func (sw *selectWait) Unpublish(f *fiber.Fiber) {
	f.SetWaiting(nil)
	sw.bl.exit()
	sw.bl = blocked{}
}

func (sw *selectWait) Park(ctx context.Context, _ *fiber.Fiber, _ any) {
	fiber.Park(ctx, func() bool { return !sw.done() })
}

// block waits on the process-wide activity broadcast. The broadcast
// channel is taken before each check so a wake between the check and the
// wait is not lost.
func (sw *selectWait) block(ctx context.Context) {
	activity.waiters.Add(1)
	defer activity.waiters.Add(-1)
	bl := enterBlocked(&sw.info)
	defer bl.exit()
	for {
		ch := activity.wait()
		if sw.done() {
			return
		}
		sw.s.block(ctx, ch)
	}
}
