// Package fiber implements stackful coroutines on top of goroutines.
//
// A fiber body runs on a pooled carrier goroutine. The scheduler resumes it
// with SwitchTo and the body hands control back by yielding, parking or
// returning; between those points the body runs exclusively, as if it were
// on the worker's own stack.
package fiber

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/pool"
)

// MinStackSize is the smallest stack hint a fiber records. Goroutine
// stacks grow on demand, so the hint only documents intent.
const MinStackSize = 64 << 10

// ErrGoexit is the error of a fiber whose body called runtime.Goexit.
var ErrGoexit = errors.New("fiber: body called runtime.Goexit")

// State is the lifecycle state of a fiber.
type State uint32

const (
	Created State = iota
	Ready
	Running
	Parked
	Done
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Parked:
		return "parked"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Reason is what a fiber handed back to the worker that resumed it.
type Reason uint8

const (
	ReasonYield Reason = iota + 1
	ReasonPark
	ReasonExit
)

func (r Reason) String() string {
	switch r {
	case ReasonYield:
		return "yield"
	case ReasonPark:
		return "park"
	case ReasonExit:
		return "exit"
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// Entry is a fiber body. ctx carries the fiber itself; pass it to channel
// and join operations so they park the fiber instead of the goroutine.
type Entry func(ctx context.Context, arg any) (any, error)

// Runner receives fibers that became runnable. from is the fiber that
// caused the wake, or nil when the waker is not a fiber.
type Runner interface {
	Ready(f, from *Fiber)
}

// WaitInfo describes what a parked fiber is waiting on.
type WaitInfo struct {
	Object string
	Op     string
}

// PanicError is the error of a fiber whose body panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fiber: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type exitSignal struct{ result any }

// Fiber is a cooperatively scheduled coroutine.
type Fiber struct {
	state       atomic.Uint32
	wakePending atomic.Bool
	done        atomic.Bool

	id        uint64
	name      string
	stackHint int
	ops       uint32

	entry Entry
	arg   any
	ctx   context.Context

	result any
	err    error

	runner Runner
	worker any
	car    *carrier
	next   *Fiber
	wait   atomic.Pointer[WaitInfo]

	doneCh chan struct{}
}

var (
	nextID atomic.Uint64

	fibers = pool.NewPoolWithReset(func() *Fiber { return new(Fiber) }, func(f *Fiber) {
		f.id, f.name, f.stackHint, f.ops = 0, "", 0, 0
		f.entry, f.arg, f.ctx = nil, nil, nil
		f.result, f.err = nil, nil
		f.runner, f.worker, f.car, f.next = nil, nil, nil, nil
		f.wait.Store(nil)
		f.doneCh = nil
		f.wakePending.Store(false)
		f.done.Store(false)
	})
)

// New creates a fiber in the Created state. It does not run until a
// scheduler hands it to SwitchTo.
func New(entry Entry, arg any, opts ...Option) (*Fiber, error) {
	if entry == nil {
		return nil, fmt.Errorf("fiber: nil entry: %w", errs.ErrInvalidArgument)
	}
	o := options{stackSize: MinStackSize, ctx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.stackSize < MinStackSize {
		o.stackSize = MinStackSize
	}

	f := fibers.Get()
	f.id = nextID.Add(1)
	f.name = o.name
	f.stackHint = o.stackSize
	f.entry = entry
	f.arg = arg
	f.runner = o.runner
	f.doneCh = make(chan struct{})
	f.ctx = context.WithValue(o.ctx, ctxKey{}, f)
	f.state.Store(uint32(Created))
	return f, nil
}

// Release returns a finished fiber to the pool. The caller must not use f
// afterwards; releasing a fiber that is not Done is a no-op.
func Release(f *Fiber) {
	if f == nil || !f.done.Load() {
		return
	}
	fibers.Put(f)
}

func (f *Fiber) ID() uint64 { return f.id }

func (f *Fiber) Name() string {
	if f.name == "" {
		return fmt.Sprintf("fiber-%d", f.id)
	}
	return f.name
}

func (f *Fiber) StackSize() int { return f.stackHint }

func (f *Fiber) State() State { return State(f.state.Load()) }

// Context is the context handed to the body.
func (f *Fiber) Context() context.Context { return f.ctx }

// Done reports whether the body has finished.
func (f *Fiber) Done() bool { return f.done.Load() }

// DoneChan is closed when the body has finished. Done may still report
// false for a moment after the close.
func (f *Fiber) DoneChan() <-chan struct{} { return f.doneCh }

// Result returns what the body returned. It is only meaningful after Done.
func (f *Fiber) Result() (any, error) { return f.result, f.err }

func (f *Fiber) Runner() Runner { return f.runner }

func (f *Fiber) SetRunner(r Runner) { f.runner = r }

// Worker is the scheduler-private value of the worker running f.
func (f *Fiber) Worker() any { return f.worker }

func (f *Fiber) SetWorker(w any) { f.worker = w }

// Next and SetNext give queues an intrusive link.
func (f *Fiber) Next() *Fiber { return f.next }

func (f *Fiber) SetNext(n *Fiber) { f.next = n }

// Tick counts one operation run by f and returns the running total. Only
// f itself may call it.
func (f *Fiber) Tick() uint32 {
	f.ops++
	return f.ops
}

// Waiting returns what f is currently parked on, if recorded.
func (f *Fiber) Waiting() *WaitInfo { return f.wait.Load() }

func (f *Fiber) SetWaiting(w *WaitInfo) { f.wait.Store(w) }

// MarkReady moves a freshly created fiber to Ready. It reports false if f
// was already started.
func (f *Fiber) MarkReady() bool {
	return f.state.CompareAndSwap(uint32(Created), uint32(Ready))
}

// SwitchTo resumes f on its carrier and blocks until f yields, parks or
// exits. It must be called by the scheduler that owns f.
func SwitchTo(f *Fiber) Reason {
	f.state.Store(uint32(Running))
	c := f.car
	if c == nil {
		c = acquireCarrier()
		f.car = c
	}
	c.in <- f
	r := <-c.out
	if r == ReasonExit {
		f.car = nil
	}
	return r
}

// Finish publishes the result of an exited fiber and wakes joiners. The
// scheduler calls it after SwitchTo returned ReasonExit; f may be recycled
// as soon as Finish returns.
func (f *Fiber) Finish() {
	ch := f.doneCh
	f.wait.Store(nil)
	f.state.Store(uint32(Done))
	close(ch)
	// A joiner may release f as soon as done is set, so it is the last
	// write and nothing touches f after it.
	f.done.Store(true)
}

// CommitPark completes a park after SwitchTo returned ReasonPark. It
// reports true when an unpark arrived while f was still switching out, in
// which case f is Ready again and the caller must requeue it.
func (f *Fiber) CommitPark() bool {
	f.state.Store(uint32(Parked))
	return f.wakePending.Swap(false) &&
		f.state.CompareAndSwap(uint32(Parked), uint32(Ready))
}

// Requeue marks a yielded fiber Ready.
func (f *Fiber) Requeue() {
	f.state.Store(uint32(Ready))
}

func (f *Fiber) run() {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(exitSignal); ok {
				f.result, f.err = e.result, nil
				return
			}
			f.result = nil
			f.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	f.result, f.err = f.entry(f.ctx, f.arg)
}

func (f *Fiber) suspend(r Reason) {
	c := f.car
	c.out <- r
	<-c.in
}

// Yield hands the worker back to the scheduler. The fiber is queued
// behind other runnable work. Outside a fiber it yields the goroutine.
func Yield(ctx context.Context) {
	f := FromContext(ctx)
	if f == nil {
		runtime.Gosched()
		return
	}
	f.suspend(ReasonYield)
}

// YieldGlobal is Yield; yielded fibers always go through the shared
// queue so siblings on the local queue run first.
func YieldGlobal(ctx context.Context) { Yield(ctx) }

// Park suspends the current fiber while cond holds. cond is re-evaluated
// after every resume, so spurious wakes are harmless. It reports false if
// ctx carries no fiber.
func Park(ctx context.Context, cond func() bool) bool {
	f := FromContext(ctx)
	if f == nil {
		return false
	}
	for {
		f.wakePending.Store(false)
		if !cond() {
			return true
		}
		f.suspend(ReasonPark)
	}
}

// Unpark makes a parked fiber runnable. Calling it on a fiber that is not
// parked records a pending wake that cancels its next park commit.
func Unpark(f, from *Fiber) {
	if f == nil {
		return
	}
	f.wakePending.Store(true)
	if f.state.CompareAndSwap(uint32(Parked), uint32(Ready)) {
		if r := f.runner; r != nil {
			r.Ready(f, from)
		}
	}
}

// Exit terminates the current fiber with result. It does not return.
// Deferred calls in the body run as for a panic.
func Exit(ctx context.Context, result any) {
	if FromContext(ctx) == nil {
		panic("BUG: fiber.Exit called outside a fiber")
	}
	panic(exitSignal{result: result})
}
