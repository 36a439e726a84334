package channel

import (
	"context"
	"time"
	"unsafe"

	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/metrics"
	"github.com/GoBlaze/blazert/sched"
)

// Recv returns the next value, parking the caller while the channel is
// empty. Buffered values stay receivable after Close; once they are gone
// Recv reports the close.
func (c *Chan[T]) Recv(ctx context.Context) (T, error) {
	var v T
	err := c.recv(ctx, &v, time.Time{}, true)
	return v, err
}

// TryRecv returns the next value only if that needs no waiting.
func (c *Chan[T]) TryRecv() (T, error) {
	var v T
	err := c.recv(nil, &v, time.Time{}, false)
	return v, err
}

// TimedRecv is Recv that gives up with errs.ErrTimeout at at.
func (c *Chan[T]) TimedRecv(ctx context.Context, at time.Time) (T, error) {
	var v T
	err := c.recv(ctx, &v, at, true)
	return v, err
}

func (c *Chan[T]) recv(ctx context.Context, dst *T, at time.Time, block bool) error {
	if c.recvFast(ctx, dst) {
		return nil
	}
	return c.recvSlow(ctx, dst, at, block)
}

func (c *Chan[T]) recvFast(ctx context.Context, dst *T) bool {
	if !c.lockFree {
		return false
	}
	v, prev, ok := c.bufPop()
	if !ok {
		return false
	}
	*dst = v
	c.gen.Add(1)
	c.st.recvs.Add(1)

	self := fiber.FromContext(ctx)
	if c.hasSend.Load() && (!c.edge || prev == c.capacity) {
		c.signalLocked(&c.sendq, self)
	}
	// With edge wakes only the first receiver is woken on the empty to
	// non-empty edge; pass the wake on while values remain.
	if c.edge && c.count.Load() > 0 && c.hasRecv.Load() {
		c.signalLocked(&c.recvq, self)
	}
	progress()
	fairness(ctx, self)
	return true
}

// recvLocked makes one attempt to fill *dst. Callers hold mu.
func (c *Chan[T]) recvLocked(dst *T, b *batch) (status, error) {
	if v, prev, ok := c.bufPop(); ok {
		*dst = v
		c.gen.Add(1)
		c.st.recvs.Add(1)
		if !c.edge || prev == c.capacity {
			c.signal(&c.sendq, b)
		}
		if c.edge && c.bufLen() > 0 {
			c.signal(&c.recvq, b)
		}
		c.syncFlags()
		return stDone, nil
	}
	// A lock-free sender has reserved a slot it has not committed yet.
	if c.bufLen() > 0 || c.inflight.Load() > 0 {
		return stRetry, nil
	}
	if w := c.sendq.dequeue(); w != nil {
		*dst = *(*T)(w.elem)
		c.wake(w, Data, b)
		c.gen.Add(1)
		c.st.recvs.Add(1)
		c.st.handoffs.Add(1)
		c.syncFlags()
		return stDone, nil
	}
	if c.closed.Load() {
		return stFail, errs.Closed(errs.Producer, c.closeErr)
	}
	if c.rxClosed.Load() {
		return stFail, errs.Closed(errs.Consumer, c.rxErr)
	}
	return stNone, nil
}

func (c *Chan[T]) recvSlow(ctx context.Context, dst *T, at time.Time, block bool) error {
	if c.timing {
		defer c.observe(metrics.OpRecv, time.Now())
	}
	self := c.caller(ctx)
	at = deadline.Earliest(ctx, at)

	var (
		w *waiter
		s *sleeper
	)
	defer func() {
		if w != nil {
			waiters.Put(w)
		}
		s.release()
	}()

	for {
		b := batch{from: self, deferred: c.wakeDefer}
		c.mu.Lock()
		g0 := c.gen.Load()
		st, err := c.recvLocked(dst, &b)
		manufacture := false
		if st == stNone && c.own != nil && c.own.made < c.capacity {
			c.own.made++
			manufacture = true
			st = stDone
		}
		if st == stNone {
			if !block {
				st, err = stFail, errs.ErrWouldBlock
			} else if e := expiredErr(ctx, at); e != nil {
				st, err = stFail, e
			}
		}
		if st != stNone {
			if st == stDone && activity.waiters.Load() > 0 {
				b.activity = true
			}
			c.mu.Unlock()
			b.release()
			switch st {
			case stDone:
				if manufacture {
					*dst = c.own.factory()
				}
				progress()
				return nil
			case stRetry:
				backoff(ctx, self)
				continue
			}
			return err
		}

		if w == nil {
			w = getWaiter(self, unsafe.Pointer(dst), false)
			w.info = fiber.WaitInfo{Object: c.name, Op: "recv"}
			s = newSleeper(ctx, self, at)
		}
		w.notified.Store(Waiting)
		c.recvq.push(w)
		c.syncFlags()
		var wake <-chan struct{}
		if self == nil {
			wake = c.notEmpty.wait()
		}
		c.mu.Unlock()
		b.release()

		c.parked(metrics.OpRecv)
		p := &parker{s: s, w: w, gen: &c.gen, g0: g0}
		if self != nil {
			_, _ = sched.Wait(ctx, p, nil)
		} else {
			p.block(ctx, wake)
		}

		c.mu.Lock()
		c.recvq.remove(w)
		c.syncFlags()
		n := w.notified.Load()
		c.mu.Unlock()
		if n == Data {
			progress()
			return nil
		}
	}
}
