// Package timerpool recycles time.Timer values for goroutine parkers that
// wait with a deadline.
package timerpool

import (
	"sync"
	"time"
)

func initTimer(t *time.Timer, timeout time.Duration) *time.Timer {
	if t == nil {
		return time.NewTimer(timeout)
	}
	if t.Reset(timeout) {
		// developer sanity-check
		panic("BUG: active timer trapped into initTimer()")
	}
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		// Collect possibly added time from the channel
		// if timer has been stopped and nobody collected its value.
		select {
		case <-t.C:
		default:
		}
	}
}

// Acquire returns a time.Timer from the pool and updates it to
// send the current time on its channel after at least timeout.
//
// The returned Timer may be returned to the pool with Release
// when no longer needed. This allows reducing GC load.
func Acquire(timeout time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(timeout)
	}
	t := v.(*time.Timer)
	initTimer(t, timeout)
	return t
}

// AcquireUntil is Acquire with an absolute deadline. A deadline in the
// past yields a timer that fires immediately.
func AcquireUntil(at time.Time) *time.Timer {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return Acquire(d)
}

// Release returns the time.Timer acquired via Acquire to the pool
// and prevents the Timer from firing.
//
// Do not access the released time.Timer or read from its channel otherwise
// data races may occur.
func Release(t *time.Timer) {
	stopTimer(t)
	timerPool.Put(t)
}

var timerPool sync.Pool
