package fiber

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBlaze/blazert/errs"
)

// loopRunner is a single-worker scheduler driven by the test goroutine.
type loopRunner struct {
	q chan *Fiber
}

func newLoopRunner() *loopRunner { return &loopRunner{q: make(chan *Fiber, 64)} }

func (r *loopRunner) Ready(f, _ *Fiber) { r.q <- f }

func (r *loopRunner) spawn(t *testing.T, entry Entry, arg any) *Fiber {
	t.Helper()
	f, err := New(entry, arg, WithRunner(r))
	require.NoError(t, err)
	require.True(t, f.MarkReady())
	r.q <- f
	return f
}

// drive runs fibers until n of them have exited.
func (r *loopRunner) drive(t *testing.T, n int) {
	t.Helper()
	for n > 0 {
		select {
		case f := <-r.q:
			switch SwitchTo(f) {
			case ReasonYield:
				f.Requeue()
				r.q <- f
			case ReasonPark:
				if f.CommitPark() {
					r.q <- f
				}
			case ReasonExit:
				f.Finish()
				n--
			}
		case <-time.After(5 * time.Second):
			t.Fatal("fibers stalled")
		}
	}
}

func TestNewNilEntry(t *testing.T) {
	f, err := New(nil, nil)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestStackHintClamped(t *testing.T) {
	f, err := New(func(context.Context, any) (any, error) { return nil, nil }, nil, WithStackSize(1024), WithName("tiny"))
	require.NoError(t, err)
	assert.Equal(t, MinStackSize, f.StackSize())
	assert.Equal(t, "tiny", f.Name())
	assert.Equal(t, Created, f.State())
}

func TestRunToCompletion(t *testing.T) {
	r := newLoopRunner()
	f := r.spawn(t, func(ctx context.Context, arg any) (any, error) {
		if FromContext(ctx) == nil {
			return nil, errors.New("no fiber in context")
		}
		return arg.(int) * 2, nil
	}, 21)
	r.drive(t, 1)

	require.True(t, f.Done())
	assert.Equal(t, Done, f.State())
	res, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	select {
	case <-f.DoneChan():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestPanicBecomesError(t *testing.T) {
	r := newLoopRunner()
	boom := errors.New("boom")
	f := r.spawn(t, func(context.Context, any) (any, error) { panic(boom) }, nil)
	r.drive(t, 1)

	_, err := f.Result()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, pe.Stack)
}

func TestExit(t *testing.T) {
	r := newLoopRunner()
	var after atomic.Bool
	f := r.spawn(t, func(ctx context.Context, _ any) (any, error) {
		Exit(ctx, "early")
		after.Store(true)
		return "late", nil
	}, nil)
	r.drive(t, 1)

	res, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, "early", res)
	assert.False(t, after.Load())
}

func TestGoexit(t *testing.T) {
	r := newLoopRunner()
	f := r.spawn(t, func(context.Context, any) (any, error) {
		runtime.Goexit()
		return nil, nil
	}, nil)
	r.drive(t, 1)

	_, err := f.Result()
	assert.ErrorIs(t, err, ErrGoexit)
}

func TestYieldInterleaves(t *testing.T) {
	r := newLoopRunner()
	var trace []string
	body := func(ctx context.Context, arg any) (any, error) {
		for i := 0; i < 3; i++ {
			trace = append(trace, arg.(string))
			Yield(ctx)
		}
		return nil, nil
	}
	r.spawn(t, body, "a")
	r.spawn(t, body, "b")
	r.drive(t, 2)

	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, trace)
}

func TestParkUntilUnparked(t *testing.T) {
	r := newLoopRunner()
	var ready atomic.Bool
	var parked atomic.Pointer[Fiber]
	r.spawn(t, func(ctx context.Context, _ any) (any, error) {
		parked.Store(FromContext(ctx))
		if !Park(ctx, func() bool { return !ready.Load() }) {
			return nil, errors.New("not a fiber")
		}
		return "woken", nil
	}, nil)

	go func() {
		for {
			f := parked.Load()
			if f != nil && f.State() == Parked {
				ready.Store(true)
				Unpark(f, nil)
				return
			}
			runtime.Gosched()
		}
	}()
	r.drive(t, 1)

	res, _ := parked.Load().Result()
	assert.Equal(t, "woken", res)
}

func TestUnparkBeforeParkCommit(t *testing.T) {
	r := newLoopRunner()
	f, err := New(func(context.Context, any) (any, error) { return nil, nil }, nil, WithRunner(r))
	require.NoError(t, err)

	// Wake lands while the fiber is still switching out.
	f.state.Store(uint32(Running))
	Unpark(f, nil)
	assert.Len(t, r.q, 0)
	assert.True(t, f.CommitPark())
	assert.Equal(t, Ready, f.State())

	// No pending wake: the park sticks until a real unpark.
	f.state.Store(uint32(Running))
	assert.False(t, f.CommitPark())
	assert.Equal(t, Parked, f.State())
	Unpark(f, nil)
	assert.Equal(t, Ready, f.State())
	assert.Same(t, f, <-r.q)

	// A second unpark of a Ready fiber does not enqueue it twice.
	Unpark(f, nil)
	assert.Len(t, r.q, 0)
}

func TestParkOutsideFiber(t *testing.T) {
	assert.False(t, Park(context.Background(), func() bool { return true }))
	Yield(context.Background())
}

func TestDetach(t *testing.T) {
	r := newLoopRunner()
	var inner, detached *Fiber
	r.spawn(t, func(ctx context.Context, _ any) (any, error) {
		inner = FromContext(ctx)
		detached = FromContext(Detach(ctx))
		return nil, nil
	}, nil)
	r.drive(t, 1)

	assert.NotNil(t, inner)
	assert.Nil(t, detached)
	assert.Nil(t, FromContext(context.Background()))
}

func TestCarrierReuse(t *testing.T) {
	StopIdleCarriers()
	r := newLoopRunner()
	r.spawn(t, func(context.Context, any) (any, error) { return nil, nil }, nil)
	r.drive(t, 1)
	require.Eventually(t, func() bool { return IdleCarriers() >= 1 }, time.Second, time.Millisecond)

	r.spawn(t, func(context.Context, any) (any, error) { return nil, nil }, nil)
	r.drive(t, 1)
	require.Eventually(t, func() bool { return IdleCarriers() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, StopIdleCarriers())
	assert.Equal(t, 0, IdleCarriers())
}

func TestReleaseRecycles(t *testing.T) {
	r := newLoopRunner()
	f := r.spawn(t, func(context.Context, any) (any, error) { return 1, nil }, nil)
	Release(f)
	r.drive(t, 1)
	// Released while running is ignored; after Done it is accepted.
	assert.True(t, f.Done())
	Release(f)
}
