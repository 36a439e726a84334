// Package channel implements typed channels that park fibers instead of
// goroutines.
//
// A channel whose element fits in a machine word and whose capacity is at
// least two uses a lock-free MPMC queue for its buffer; every other
// channel keeps a ring under its mutex. Both kinds hand values straight to
// a parked counterpart when the buffer is empty. Callers that are plain
// goroutines block on a per-channel condition instead of parking.
package channel

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/GoBlaze/blazert/buffer"
	"github.com/GoBlaze/blazert/config"
	"github.com/GoBlaze/blazert/constants"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/metrics"
	"github.com/GoBlaze/blazert/mutex"
	"github.com/GoBlaze/blazert/queue"
)

// fairnessTick is how many fast-path operations a fiber runs between
// cooperative yields.
const fairnessTick = 32

var nextID atomic.Uint64

// Chan is a channel of T. The zero value is not usable; create channels
// with New, Pair or NewPool.
type Chan[T any] struct {
	mu mutex.Spin

	id        uint64
	name      string
	capacity  int
	elemSize  uintptr
	mode      Mode
	topology  Topology
	sync      bool
	ordered   bool
	allowTake bool
	lockFree  bool
	edge      bool
	wakeDefer bool
	timing    bool

	// q is the buffer of a lock-free channel, ring of any other. count
	// tracks reserved plus committed slots of q.
	q        *queue.MPMC[T]
	ring     *buffer.Ring[T]
	count    atomic.Int64
	inflight atomic.Int64

	gen      atomic.Uint64
	hasSend  atomic.Bool
	hasRecv  atomic.Bool
	closed   atomic.Bool
	rxClosed atomic.Bool
	freed    atomic.Bool
	closeErr error
	rxErr    error

	sendq    waitq
	recvq    waitq
	notFull  cond
	notEmpty cond

	destroy func(T)
	own     *owned[T]

	st counters
}

// New creates a channel. A capacity of zero makes every send rendezvous
// with a receiver.
func New[T any](capacity int, opts ...Option) (*Chan[T], error) {
	return newChan[T](capacity, nil, opts)
}

func newChan[T any](capacity int, own *owned[T], opts []Option) (*Chan[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("channel: negative capacity %d: %w", capacity, errs.ErrInvalidArgument)
	}
	o := options{allowTake: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.mode > DropOld {
		return nil, fmt.Errorf("channel: unknown mode %d: %w", o.mode, errs.ErrInvalidArgument)
	}

	cfg := config.Get()
	var zero T
	c := &Chan[T]{
		id:        nextID.Add(1),
		name:      o.name,
		capacity:  capacity,
		elemSize:  unsafe.Sizeof(zero),
		mode:      o.mode,
		topology:  o.topology,
		sync:      o.sync,
		ordered:   o.ordered,
		allowTake: o.allowTake,
		edge:      cfg.SteadyEdgeWake,
		wakeDefer: cfg.WakeDefer,
		timing:    cfg.ChannelTiming,
		own:       own,
	}
	if c.name == "" {
		c.name = fmt.Sprintf("chan-%d", c.id)
	}
	if o.destroy != nil {
		fn, ok := o.destroy.(func(T))
		if !ok {
			return nil, fmt.Errorf("channel: destroy hook %T does not take %T: %w", o.destroy, zero, errs.ErrInvalidArgument)
		}
		c.destroy = fn
	}
	if own != nil && own.destroy != nil {
		c.destroy = own.destroy
	}
	if o.edgeWake != nil {
		c.edge = *o.edgeWake
	}
	if o.wakeDefer != nil {
		c.wakeDefer = *o.wakeDefer
	}

	lockFree := !cfg.NoLockFree
	if o.lockFree != nil {
		lockFree = *o.lockFree
	}
	c.lockFree = lockFree && capacity >= 2 && c.elemSize <= constants.WordSize &&
		!c.sync && !c.ordered && own == nil

	// Edge-triggered wakes only apply to the lock-free buffer.
	c.edge = c.edge && c.lockFree
	if c.lockFree {
		c.q = queue.New[T](capacity)
		return c, nil
	}
	ring, err := buffer.NewRing[T](capacity)
	if err != nil {
		return nil, fmt.Errorf("channel: buffer of %d: %w", capacity, errs.ErrOutOfMemory)
	}
	c.ring = ring
	return c, nil
}

func (c *Chan[T]) Name() string { return c.name }

// Cap returns the capacity the channel was created with.
func (c *Chan[T]) Cap() int { return c.capacity }

// Len returns a snapshot of the number of buffered values.
func (c *Chan[T]) Len() int {
	if c.lockFree {
		return int(c.count.Load())
	}
	c.mu.Lock()
	n := c.ring.Len()
	c.mu.Unlock()
	return n
}

// ElemSize is the size in bytes of one element.
func (c *Chan[T]) ElemSize() uintptr { return c.elemSize }

// LockFree reports whether the channel uses the lock-free buffer.
func (c *Chan[T]) LockFree() bool { return c.lockFree }

func (c *Chan[T]) Mode() Mode { return c.mode }

func (c *Chan[T]) Closed() bool { return c.closed.Load() }

func (c *Chan[T]) String() string {
	return fmt.Sprintf("%s(cap=%d, mode=%s)", c.name, c.capacity, c.mode)
}

// bufLen is the buffered count. Ring channels must hold mu.
func (c *Chan[T]) bufLen() int {
	if c.lockFree {
		return int(c.count.Load())
	}
	return c.ring.Len()
}

func (c *Chan[T]) reserve() (int64, bool) {
	for {
		n := c.count.Load()
		if n >= int64(c.capacity) {
			return n, false
		}
		if c.count.CompareAndSwap(n, n+1) {
			return n, true
		}
	}
}

// bufPush appends v and returns the count before the push. Ring channels
// must hold mu.
func (c *Chan[T]) bufPush(v T) (int, bool) {
	if !c.lockFree {
		n := c.ring.Len()
		return n, c.ring.Push(v)
	}
	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	prev, ok := c.reserve()
	if !ok {
		return int(prev), false
	}
	if !c.q.Enqueue(v) {
		c.count.Add(-1)
		return int(prev), false
	}
	return int(prev), true
}

// bufPop removes the oldest value and returns the count before the pop.
// Ring channels must hold mu.
func (c *Chan[T]) bufPop() (T, int, bool) {
	if !c.lockFree {
		n := c.ring.Len()
		v, ok := c.ring.Pop()
		return v, n, ok
	}
	v, ok := c.q.Dequeue()
	if !ok {
		return v, int(c.count.Load()), false
	}
	return v, int(c.count.Add(-1) + 1), true
}

// syncFlags republishes the waiter summary flags. Callers hold mu.
func (c *Chan[T]) syncFlags() {
	c.hasSend.Store(!c.sendq.empty())
	c.hasRecv.Store(!c.recvq.empty())
}

// wake completes w with how. Callers hold mu; fibers are queued on b and
// goroutines are woken through the channel's conditions.
func (c *Chan[T]) wake(w *waiter, how notification, b *batch) {
	w.notified.Store(how)
	if how == Signal {
		c.st.signals.Add(1)
	} else {
		c.st.wakes.Add(1)
	}
	if g := w.group; g != nil {
		if how != Data {
			g.signaled.Add(1)
		}
		if g.fiber != nil {
			b.add(g.fiber)
		} else {
			b.activity = true
		}
		return
	}
	if w.fiber != nil {
		b.add(w.fiber)
		return
	}
	if w.send {
		c.notFull.broadcast()
	} else {
		c.notEmpty.broadcast()
	}
}

// signal tells one live waiter of q that the buffer changed.
func (c *Chan[T]) signal(q *waitq, b *batch) {
	if w := q.dequeueSignal(nil); w != nil {
		c.wake(w, Signal, b)
	}
}

// signalLocked takes mu to signal one waiter of q on behalf of the
// lock-free path.
func (c *Chan[T]) signalLocked(q *waitq, self *fiber.Fiber) {
	b := batch{from: self, deferred: c.wakeDefer}
	c.mu.Lock()
	c.signal(q, &b)
	c.syncFlags()
	c.mu.Unlock()
	b.release()
}

func (c *Chan[T]) caller(ctx context.Context) *fiber.Fiber {
	if c.sync {
		return nil
	}
	return fiber.FromContext(ctx)
}

// fairness yields the calling fiber every fairnessTick fast-path
// operations so parked fibers get to run.
func fairness(ctx context.Context, self *fiber.Fiber) {
	if self != nil && self.Tick()%fairnessTick == 0 {
		fiber.Yield(ctx)
	}
}

func backoff(ctx context.Context, self *fiber.Fiber) {
	if self != nil {
		fiber.Yield(ctx)
		return
	}
	runtime.Gosched()
}

func (c *Chan[T]) observe(op string, start time.Time) {
	metrics.Default().ObserveSince(op, start)
}

func (c *Chan[T]) parked(op string) {
	c.st.parks.Add(1)
	if c.timing {
		metrics.Default().Parked(op)
	}
}

func (c *Chan[T]) runDestroy(vs []T) {
	if c.destroy == nil {
		return
	}
	for _, v := range vs {
		c.destroy(v)
	}
}
