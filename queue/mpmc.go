// Package queue implements a bounded lock-free MPMC queue with one sequence
// number per slot.
package queue

import (
	"sync/atomic"
	"unsafe"

	"github.com/GoBlaze/blazert/constants"
)

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// MPMC is a fixed-capacity multi-producer multi-consumer queue. Producers
// CAS-advance tail and consumers CAS-advance head; a slot's sequence number
// tells each side whether the slot is ready for it, so the value itself is
// published by the sequence store.
type MPMC[T any] struct {
	_    [constants.CacheLinePadSize]byte
	tail atomic.Uint64
	_    [constants.CacheLinePadSize - unsafe.Sizeof(atomic.Uint64{})]byte //nolint:unused
	head atomic.Uint64
	_    [constants.CacheLinePadSize - unsafe.Sizeof(atomic.Uint64{})]byte //nolint:unused

	mask  uint64
	slots []slot[T]
}

// New returns a queue holding at least capacity values. The real capacity
// is rounded up to a power of two, minimum 2.
func New[T any](capacity int) *MPMC[T] {
	if capacity < 2 {
		capacity = 2
	}
	n := constants.NextPowerOfTwo(uint64(capacity))
	q := &MPMC[T]{
		mask:  n - 1,
		slots: make([]slot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Enqueue appends v. It returns false when the queue is full, which
// includes a slot whose consumer claimed it but has not yet released it.
func (q *MPMC[T]) Enqueue(v T) bool {
	pos := q.tail.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch dif := int64(seq - pos); {
		case dif == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.tail.Load()
		case dif < 0:
			return false
		default:
			pos = q.tail.Load()
		}
	}
}

// Dequeue removes the oldest committed value. It returns false when the
// queue is empty, including when the next producer has claimed a slot but
// not yet published it.
func (q *MPMC[T]) Dequeue() (T, bool) {
	var zero T
	pos := q.head.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch dif := int64(seq - (pos + 1)); {
		case dif == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v := s.val
				s.val = zero
				s.seq.Store(pos + q.mask + 1)
				return v, true
			}
			pos = q.head.Load()
		case dif < 0:
			return zero, false
		default:
			pos = q.head.Load()
		}
	}
}

// Len is a snapshot of the number of claimed slots.
func (q *MPMC[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail <= head {
		return 0
	}
	n := tail - head
	if n > q.mask+1 {
		n = q.mask + 1
	}
	return int(n)
}

// Cap returns the rounded capacity.
func (q *MPMC[T]) Cap() int { return int(q.mask + 1) }
