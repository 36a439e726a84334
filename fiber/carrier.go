package fiber

import (
	"sync/atomic"
)

// MaxIdleCarriers bounds the goroutines kept parked for reuse.
const MaxIdleCarriers = 1024

// carrier is the goroutine a fiber body executes on. The worker and the
// fiber pass a baton over in/out so exactly one of them runs at a time.
type carrier struct {
	in  chan *Fiber
	out chan Reason
}

func newCarrier() *carrier {
	c := &carrier{
		in:  make(chan *Fiber),
		out: make(chan Reason),
	}
	go c.loop()
	return c
}

// represents the infinite loop for a carrier goroutine
func (c *carrier) loop() {
	for {
		f := <-c.in
		if f == nil {
			return
		}
		if !c.serve(f) {
			return
		}
		c.out <- ReasonExit
		if !idle.push(c) {
			return
		}
	}
}

// serve runs f to completion. It reports false when the body called
// runtime.Goexit, in which case the exit baton has already been passed
// and the goroutine is unwinding.
func (c *carrier) serve(f *Fiber) (ok bool) {
	defer func() {
		if !ok {
			f.result, f.err = nil, ErrGoexit
			c.out <- ReasonExit
		}
	}()
	f.run()
	return true
}

// carrierStack is a lock-free stack of idle carriers. Each push links a
// fresh node, so a node is never reused while a popper may still hold it.
type carrierStack struct {
	top  atomic.Pointer[carrierNode]
	size atomic.Int64
}

// a single node in the stack
type carrierNode struct {
	next *carrierNode
	c    *carrier
}

var idle carrierStack

// push a carrier on top of the stack
func (s *carrierStack) push(c *carrier) bool {
	if s.size.Add(1) > MaxIdleCarriers {
		s.size.Add(-1)
		return false
	}
	n := &carrierNode{c: c}
	for {
		top := s.top.Load()
		n.next = top
		if s.top.CompareAndSwap(top, n) {
			return true
		}
	}
}

// pop a carrier from the top of the stack
func (s *carrierStack) pop() *carrier {
	for {
		top := s.top.Load()
		if top == nil {
			return nil
		}
		if s.top.CompareAndSwap(top, top.next) {
			s.size.Add(-1)
			return top.c
		}
	}
}

func acquireCarrier() *carrier {
	if c := idle.pop(); c != nil {
		return c
	}
	return newCarrier()
}

// IdleCarriers reports how many carrier goroutines are parked for reuse.
func IdleCarriers() int { return int(idle.size.Load()) }

// StopIdleCarriers terminates every parked carrier goroutine. Carriers
// still running fibers are unaffected and park again when they finish.
func StopIdleCarriers() int {
	n := 0
	for c := idle.pop(); c != nil; c = idle.pop() {
		c.in <- nil
		n++
	}
	return n
}
