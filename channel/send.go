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

// status is the outcome of one attempt under the channel mutex.
type status uint8

const (
	stNone status = iota
	stDone
	// stFail ends the operation with the accompanying error.
	stFail
	// stRetry means another party is mid-operation; back off and retry.
	stRetry
)

// Send delivers v, parking the caller while the channel is full.
func (c *Chan[T]) Send(ctx context.Context, v T) error {
	return c.send(ctx, &v, time.Time{}, true)
}

// TrySend delivers v only if that needs no waiting.
func (c *Chan[T]) TrySend(v T) error {
	return c.send(nil, &v, time.Time{}, false)
}

// TimedSend is Send that gives up with errs.ErrTimeout at at.
func (c *Chan[T]) TimedSend(ctx context.Context, v T, at time.Time) error {
	return c.send(ctx, &v, at, true)
}

func (c *Chan[T]) send(ctx context.Context, src *T, at time.Time, block bool) error {
	if c.own != nil && c.own.reset != nil {
		c.own.reset(*src)
	}
	if c.sendFast(ctx, src) {
		return nil
	}
	return c.sendSlow(ctx, src, at, block)
}

func (c *Chan[T]) sendFast(ctx context.Context, src *T) bool {
	if !c.lockFree || c.hasRecv.Load() {
		return false
	}
	c.inflight.Add(1)
	if c.closed.Load() || c.rxClosed.Load() {
		c.inflight.Add(-1)
		return false
	}
	prev, ok := c.reserve()
	if !ok {
		c.inflight.Add(-1)
		return false
	}
	if !c.q.Enqueue(*src) {
		c.count.Add(-1)
		c.inflight.Add(-1)
		return false
	}
	c.inflight.Add(-1)
	c.gen.Add(1)
	c.st.sends.Add(1)
	c.st.buffered.Add(1)

	self := fiber.FromContext(ctx)
	if c.hasRecv.Load() && (!c.edge || prev == 0) {
		c.signalLocked(&c.recvq, self)
	}
	progress()
	fairness(ctx, self)
	return true
}

// sendLocked makes one attempt to deliver *src. Callers hold mu.
func (c *Chan[T]) sendLocked(src *T, b *batch) (status, error) {
	if c.closed.Load() {
		return stFail, errs.Closed(errs.Producer, c.closeErr)
	}
	if c.rxClosed.Load() {
		return stFail, errs.Closed(errs.Consumer, c.rxErr)
	}
	// Hand off only into an empty buffer so a sender's values stay in
	// order.
	if c.bufLen() == 0 && c.inflight.Load() == 0 {
		if w := c.recvq.dequeue(); w != nil {
			*(*T)(w.elem) = *src
			c.wake(w, Data, b)
			c.gen.Add(1)
			c.st.sends.Add(1)
			c.st.handoffs.Add(1)
			c.syncFlags()
			return stDone, nil
		}
	}
	prev, ok := c.bufPush(*src)
	if !ok {
		return stNone, nil
	}
	c.gen.Add(1)
	c.st.sends.Add(1)
	c.st.buffered.Add(1)
	c.signal(&c.recvq, b)
	if c.edge && prev+1 < c.capacity {
		c.signal(&c.sendq, b)
	}
	c.syncFlags()
	return stDone, nil
}

// dropOldest evicts the oldest buffered value. Callers hold mu.
func (c *Chan[T]) dropOldest() (T, bool) {
	v, _, ok := c.bufPop()
	if ok {
		c.gen.Add(1)
		c.st.drops.Add(1)
	}
	return v, ok
}

func (c *Chan[T]) sendSlow(ctx context.Context, src *T, at time.Time, block bool) error {
	if c.timing {
		defer c.observe(metrics.OpSend, time.Now())
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
		st, err := c.sendLocked(src, &b)
		var victim T
		dropped := false
		if st == stNone && c.mode != Block {
			st, dropped, err = c.applyMode(src, &b, &victim)
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
			if dropped && c.destroy != nil {
				c.destroy(victim)
			}
			switch st {
			case stDone:
				progress()
				return nil
			case stRetry:
				backoff(ctx, self)
				continue
			}
			return err
		}

		if w == nil {
			w = getWaiter(self, unsafe.Pointer(src), true)
			w.info = fiber.WaitInfo{Object: c.name, Op: "send"}
			s = newSleeper(ctx, self, at)
		}
		w.notified.Store(Waiting)
		c.sendq.push(w)
		c.syncFlags()
		var wake <-chan struct{}
		if self == nil {
			wake = c.notFull.wait()
		}
		c.mu.Unlock()
		b.release()

		c.parked(metrics.OpSend)
		p := &parker{s: s, w: w, gen: &c.gen, g0: g0}
		if self != nil {
			_, _ = sched.Wait(ctx, p, nil)
		} else {
			p.block(ctx, wake)
		}

		c.mu.Lock()
		c.sendq.remove(w)
		c.syncFlags()
		n := w.notified.Load()
		c.mu.Unlock()
		if n == Data {
			progress()
			return nil
		}
	}
}

// applyMode runs the full-buffer policy of a DropNew or DropOld channel.
// An evicted value is stored in victim for the caller to destroy once mu
// is released. Callers hold mu.
func (c *Chan[T]) applyMode(src *T, b *batch, victim *T) (status, bool, error) {
	if c.mode == DropNew {
		c.st.drops.Add(1)
		return stFail, false, errs.ErrWouldBlock
	}
	if c.capacity == 0 {
		return stFail, false, errs.ErrWouldBlock
	}
	old, ok := c.dropOldest()
	if !ok {
		return stRetry, false, nil
	}
	*victim = old
	if _, ok := c.bufPush(*src); !ok {
		return stRetry, true, nil
	}
	c.gen.Add(1)
	c.st.sends.Add(1)
	c.st.buffered.Add(1)
	c.signal(&c.recvq, b)
	c.syncFlags()
	return stDone, true, nil
}
