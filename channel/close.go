package channel

import (
	"runtime"
)

// Close closes the sending side. Parked senders and receivers are woken;
// receivers drain the buffer before they observe the close. Closing a
// closed channel does nothing.
func (c *Chan[T]) Close() error {
	return c.CloseWithError(nil)
}

// CloseWithError is Close that makes later operations fail with a
// *errs.ClosedError carrying err.
func (c *Chan[T]) CloseWithError(err error) error {
	b := batch{deferred: c.wakeDefer}
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closeErr = err
	c.closed.Store(true)
	c.drainWaiters(&c.sendq, &b)
	c.drainWaiters(&c.recvq, &b)
	c.finishClose(&b)
	c.mu.Unlock()
	b.release()
	return nil
}

// RxCloseWithError declares that nobody will receive any more. Parked
// senders are woken and every later send fails with err.
func (c *Chan[T]) RxCloseWithError(err error) error {
	b := batch{deferred: c.wakeDefer}
	c.mu.Lock()
	if c.rxClosed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.rxErr = err
	c.rxClosed.Store(true)
	c.drainWaiters(&c.sendq, &b)
	c.finishClose(&b)
	c.mu.Unlock()
	b.release()
	return nil
}

func (c *Chan[T]) drainWaiters(q *waitq, b *batch) {
	for w := q.first; w != nil; w = q.first {
		q.remove(w)
		if w.live() {
			c.wake(w, Woken, b)
		}
	}
}

func (c *Chan[T]) finishClose(b *batch) {
	c.gen.Add(1)
	c.notFull.broadcast()
	c.notEmpty.broadcast()
	c.syncFlags()
	c.st.closes.Add(1)
	b.activity = true
}

// Free closes the channel if it is open and runs the destroy hook on every
// value still buffered. The channel stays safe to call; operations fail
// as on a closed channel.
func (c *Chan[T]) Free() {
	if !c.freed.CompareAndSwap(false, true) {
		return
	}
	_ = c.Close()

	// Lock-free senders that passed the closed check may still commit.
	for c.inflight.Load() > 0 {
		runtime.Gosched()
	}
	var rest []T
	c.mu.Lock()
	for {
		v, _, ok := c.bufPop()
		if !ok {
			if c.bufLen() > 0 {
				c.mu.Unlock()
				runtime.Gosched()
				c.mu.Lock()
				continue
			}
			break
		}
		rest = append(rest, v)
	}
	if c.ring != nil {
		c.ring.Reset()
	}
	c.mu.Unlock()
	c.runDestroy(rest)
}
