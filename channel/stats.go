package channel

import "sync/atomic"

type counters struct {
	sends    atomic.Uint64
	recvs    atomic.Uint64
	handoffs atomic.Uint64
	buffered atomic.Uint64
	drops    atomic.Uint64
	parks    atomic.Uint64
	wakes    atomic.Uint64
	signals  atomic.Uint64
	closes   atomic.Uint64
}

// Stats is a snapshot of a channel's counters.
type Stats struct {
	Name     string
	Cap      int
	Len      int
	LockFree bool
	Topology Topology

	Sends uint64
	Recvs uint64
	// Handoffs counts values passed straight to a parked counterpart.
	Handoffs uint64
	// BufferedInserts counts values that went through the buffer.
	BufferedInserts uint64
	Drops           uint64
	Parks           uint64
	// Wakes counts Data and Woken notifications, Signals the buffer
	// change notifications.
	Wakes   uint64
	Signals uint64
	Closes  uint64

	// Senders and Receivers are the waiters queued when the snapshot was
	// taken, select cases included.
	Senders   int
	Receivers int
}

func (c *Chan[T]) Stats() Stats {
	c.mu.Lock()
	senders, receivers := c.sendq.n, c.recvq.n
	c.mu.Unlock()
	return Stats{
		Senders:         senders,
		Receivers:       receivers,
		Name:            c.name,
		Cap:             c.capacity,
		Len:             c.Len(),
		LockFree:        c.lockFree,
		Topology:        c.topology,
		Sends:           c.st.sends.Load(),
		Recvs:           c.st.recvs.Load(),
		Handoffs:        c.st.handoffs.Load(),
		BufferedInserts: c.st.buffered.Load(),
		Drops:           c.st.drops.Load(),
		Parks:           c.st.parks.Load(),
		Wakes:           c.st.wakes.Load(),
		Signals:         c.st.signals.Load(),
		Closes:          c.st.closes.Load(),
	}
}
