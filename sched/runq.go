package sched

import (
	"sync"
	"sync/atomic"

	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/queue"
)

// runq is the global run queue. When the bounded queue is full, fibers
// spill onto an intrusive list linked through Fiber.Next.
type runq struct {
	q *queue.MPMC[*fiber.Fiber]

	mu       sync.Mutex
	head     *fiber.Fiber
	tail     *fiber.Fiber
	overflow atomic.Int64
}

func newRunq(capacity int) *runq {
	return &runq{q: queue.New[*fiber.Fiber](capacity)}
}

func (r *runq) push(f *fiber.Fiber) {
	if r.q.Enqueue(f) {
		return
	}
	r.mu.Lock()
	f.SetNext(nil)
	if r.tail == nil {
		r.head = f
	} else {
		r.tail.SetNext(f)
	}
	r.tail = f
	r.overflow.Add(1)
	r.mu.Unlock()
}

func (r *runq) pop() *fiber.Fiber {
	if f, ok := r.q.Dequeue(); ok {
		return f
	}
	if r.overflow.Load() == 0 {
		return nil
	}
	r.mu.Lock()
	f := r.head
	if f != nil {
		r.head = f.Next()
		if r.head == nil {
			r.tail = nil
		}
		f.SetNext(nil)
		r.overflow.Add(-1)
	}
	r.mu.Unlock()
	return f
}

func (r *runq) len() int {
	return r.q.Len() + int(r.overflow.Load())
}
