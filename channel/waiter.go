package channel

import (
	"sync/atomic"
	"unsafe"

	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/pool"
)

// notification is the state word of a waiter.
type notification = uint32

const (
	// Waiting is the initial state.
	Waiting notification = iota
	// Woken means retry the operation from the top: the channel closed or
	// the waiter was nudged for a select partner.
	Woken
	// Data means a counterpart performed the handoff through elem.
	Data
	// Signal means the buffer changed; retry the buffer operation.
	Signal
)

// group is shared by every waiter a single select registers.
type group struct {
	fiber    *fiber.Fiber
	signaled atomic.Int32
	// winner is -1 while open, the winning case index once claimed, and
	// -2 once the select abandoned its registration.
	winner atomic.Int32
}

func (g *group) open() bool { return g.winner.Load() == -1 }

// waiter is a node on a channel's send or recv list. State transitions out
// of Waiting happen under the channel mutex.
type waiter struct {
	fiber *fiber.Fiber

	prev, next *waiter
	listed     bool

	// elem points at the sender's source or the receiver's destination.
	elem unsafe.Pointer

	notified atomic.Uint32
	send     bool

	group *group
	index int

	info fiber.WaitInfo
}

var waiters = pool.NewPoolWithReset(func() *waiter { return new(waiter) }, func(w *waiter) {
	if w.listed {
		panic("BUG: pooling a listed waiter")
	}
	w.fiber, w.prev, w.next, w.elem = nil, nil, nil, nil
	w.notified.Store(Waiting)
	w.send = false
	w.group, w.index = nil, 0
	w.info = fiber.WaitInfo{}
})

func getWaiter(f *fiber.Fiber, elem unsafe.Pointer, send bool) *waiter {
	w := waiters.Get()
	w.fiber = f
	w.elem = elem
	w.send = send
	return w
}

// claim reports whether w may be completed. A select waiter is claimable
// only by the first CAS on its group's winner.
func (w *waiter) claim() bool {
	if w.notified.Load() != Waiting {
		return false
	}
	if g := w.group; g != nil {
		return g.winner.CompareAndSwap(-1, int32(w.index))
	}
	return true
}

// live reports whether w can still be signalled.
func (w *waiter) live() bool {
	if w.notified.Load() != Waiting {
		return false
	}
	return w.group == nil || w.group.open()
}

// waitq is an intrusive FIFO of waiters, guarded by the channel mutex.
type waitq struct {
	first, last *waiter
	n           int
}

func (q *waitq) push(w *waiter) {
	if w.listed {
		panic("BUG: waiter already on a list")
	}
	w.prev, w.next = q.last, nil
	if q.last == nil {
		q.first = w
	} else {
		q.last.next = w
	}
	q.last = w
	w.listed = true
	q.n++
}

func (q *waitq) remove(w *waiter) {
	if !w.listed {
		return
	}
	if w.prev == nil {
		q.first = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.last = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	w.listed = false
	q.n--
}

// dequeue unlinks and returns the first waiter that could be claimed.
// Waiters of a select that already has a winner are dropped on the way.
func (q *waitq) dequeue() *waiter {
	for w := q.first; w != nil; w = q.first {
		q.remove(w)
		if w.claim() {
			return w
		}
	}
	return nil
}

// dequeueSignal unlinks the first live waiter without claiming it. Waiters
// of skip are left in place.
func (q *waitq) dequeueSignal(skip *group) *waiter {
	for w := q.first; w != nil; {
		next := w.next
		switch {
		case !w.live():
			q.remove(w)
		case skip != nil && w.group == skip:
		default:
			q.remove(w)
			return w
		}
		w = next
	}
	return nil
}

func (q *waitq) empty() bool { return q.n == 0 }
