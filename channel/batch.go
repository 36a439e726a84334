package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/timerpool"
)

// wakeBatchSize bounds how many fibers a batch holds before it flushes
// early.
const wakeBatchSize = 16

// batch collects the fibers an operation wakes while holding a channel
// mutex. release must run once no channel mutex is held.
type batch struct {
	from     *fiber.Fiber
	deferred bool
	activity bool
	n        int
	fibers   [wakeBatchSize]*fiber.Fiber
}

func (b *batch) add(f *fiber.Fiber) {
	if !b.deferred {
		fiber.Unpark(f, b.from)
		return
	}
	if b.n == len(b.fibers) {
		b.flush()
	}
	b.fibers[b.n] = f
	b.n++
}

func (b *batch) flush() {
	for i := 0; i < b.n; i++ {
		fiber.Unpark(b.fibers[i], b.from)
		b.fibers[i] = nil
	}
	b.n = 0
}

func (b *batch) release() {
	b.flush()
	if b.activity {
		b.activity = false
		activity.broadcast()
	}
}

// cond is a close-to-broadcast condition for goroutine parkers. It is
// guarded by the channel mutex.
type cond struct {
	ch chan struct{}
}

func (c *cond) wait() <-chan struct{} {
	if c.ch == nil {
		c.ch = make(chan struct{})
	}
	return c.ch
}

func (c *cond) broadcast() {
	if c.ch != nil {
		close(c.ch)
		c.ch = nil
	}
}

// broadcaster wakes goroutines blocked in a select. Channel mutexes are
// never held while mu is taken.
type broadcaster struct {
	mu      sync.Mutex
	ch      chan struct{}
	waiters atomic.Int64
}

var activity broadcaster

func (a *broadcaster) wait() <-chan struct{} {
	a.mu.Lock()
	if a.ch == nil {
		a.ch = make(chan struct{})
	}
	ch := a.ch
	a.mu.Unlock()
	return ch
}

func (a *broadcaster) broadcast() {
	if a.waiters.Load() == 0 {
		return
	}
	a.mu.Lock()
	if a.ch != nil {
		close(a.ch)
		a.ch = nil
	}
	a.mu.Unlock()
}

// NotifyActivity wakes every goroutine blocked in Select or
// WaitAnyActivity.
func NotifyActivity() { activity.broadcast() }

// WaitAnyActivity blocks until some channel reports activity or timeout
// elapses. A negative timeout waits forever. It reports whether activity
// was observed.
func WaitAnyActivity(timeout time.Duration) bool {
	activity.waiters.Add(1)
	defer activity.waiters.Add(-1)

	ch := activity.wait()
	if timeout < 0 {
		<-ch
		return true
	}
	t := timerpool.Acquire(timeout)
	defer timerpool.Release(t)
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
