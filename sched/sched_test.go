package sched

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/logging"
)

func newScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestWorkerClamp(t *testing.T) {
	s, err := New(WithWorkers(1000))
	require.NoError(t, err)
	assert.Equal(t, MaxWorkers, s.Workers())

	_, err = New(WithWorkers(-1))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = New(WithLocalQueueSize(0))
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestSpawnJoinFromGoroutine(t *testing.T) {
	s := newScheduler(t, WithWorkers(2))
	f, err := s.Spawn(context.Background(), func(_ context.Context, arg any) (any, error) {
		return arg.(int) + 1, nil
	}, 41)
	require.NoError(t, err)

	res, err := s.Join(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestNestedSpawnJoin(t *testing.T) {
	s := newScheduler(t, WithWorkers(2))
	f, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		sum := 0
		var kids []*fiber.Fiber
		for i := 1; i <= 10; i++ {
			k, err := s.Spawn(ctx, func(_ context.Context, arg any) (any, error) {
				return arg.(int) * arg.(int), nil
			}, i)
			if err != nil {
				return nil, err
			}
			kids = append(kids, k)
		}
		for _, k := range kids {
			v, err := s.Join(ctx, k)
			if err != nil {
				return nil, err
			}
			sum += v.(int)
		}
		return sum, nil
	}, nil)
	require.NoError(t, err)

	res, err := s.Join(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 385, res)
}

func TestJoinSurfacesPanic(t *testing.T) {
	s := newScheduler(t, WithWorkers(1))
	f, err := s.Spawn(context.Background(), func(context.Context, any) (any, error) {
		panic("bad fiber")
	}, nil)
	require.NoError(t, err)

	_, err = s.Join(context.Background(), f)
	var pe *fiber.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad fiber", pe.Value)
}

func TestJoinErrors(t *testing.T) {
	s := newScheduler(t, WithWorkers(1))
	_, err := s.Join(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	f, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		return s.Join(ctx, fiber.FromContext(ctx))
	}, nil)
	require.NoError(t, err)
	_, err = s.Join(context.Background(), f)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestJoinTimeout(t *testing.T) {
	s := newScheduler(t, WithWorkers(1))
	var release atomic.Bool
	f, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		for !release.Load() {
			fiber.Yield(ctx)
		}
		return "late", nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Join(ctx, f)
	assert.ErrorIs(t, err, errs.ErrTimeout)

	release.Store(true)
	res, err := s.Join(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "late", res)
}

func TestWorkStealingBalance(t *testing.T) {
	const n = 10000
	s := newScheduler(t, WithWorkers(4))

	var completed atomic.Int64
	noop := func(context.Context, any) (any, error) {
		completed.Add(1)
		return nil, nil
	}
	spawner, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		kids := make([]*fiber.Fiber, 0, n)
		for i := 0; i < n; i++ {
			k, err := s.Spawn(ctx, noop, nil)
			if err != nil {
				return nil, err
			}
			kids = append(kids, k)
		}
		// Hold this worker without yielding to the scheduler so fibers
		// left on its deque can only run on thieves.
		for completed.Load() < n {
			runtime.Gosched()
		}
		return kids, nil
	}, nil)
	require.NoError(t, err)

	res, err := s.Join(context.Background(), spawner)
	require.NoError(t, err)
	for _, k := range res.([]*fiber.Fiber) {
		_, err := s.Join(context.Background(), k)
		require.NoError(t, err)
	}

	assert.EqualValues(t, n, completed.Load())
	total := s.Stats().Total()
	assert.EqualValues(t, n+1, total.Completed)
	assert.Greater(t, total.Stolen, uint64(0))
}

func TestGlobalOverflow(t *testing.T) {
	s, err := New(WithWorkers(2), WithGlobalQueueSize(2))
	require.NoError(t, err)

	var ran atomic.Int64
	var fibers []*fiber.Fiber
	for i := 0; i < 50; i++ {
		f, err := s.Spawn(context.Background(), func(context.Context, any) (any, error) {
			ran.Add(1)
			return nil, nil
		}, nil)
		require.NoError(t, err)
		fibers = append(fibers, f)
	}
	assert.EqualValues(t, 50, s.Pending())
	s.Start()
	for _, f := range fibers {
		_, err := s.Join(context.Background(), f)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 50, ran.Load())
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestConcurrentGoroutineSpawners(t *testing.T) {
	s := newScheduler(t, WithWorkers(4))
	var g errgroup.Group
	var total atomic.Int64
	for p := 0; p < 8; p++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				f, err := s.Spawn(context.Background(), func(context.Context, any) (any, error) {
					return 1, nil
				}, nil)
				if err != nil {
					return err
				}
				v, err := s.Join(context.Background(), f)
				if err != nil {
					return err
				}
				total.Add(int64(v.(int)))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1600, total.Load())
}

func TestShutdownWaitsForFibers(t *testing.T) {
	s, err := New(WithWorkers(2), WithStats(true))
	require.NoError(t, err)
	s.Start()

	var done atomic.Bool
	_, err = s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		for i := 0; i < 100; i++ {
			fiber.Yield(ctx)
		}
		done.Store(true)
		return nil, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, done.Load())
	assert.EqualValues(t, 0, s.Live())
	assert.GreaterOrEqual(t, s.Stats().Total().Yields, uint64(100))

	_, err = s.Spawn(context.Background(), func(context.Context, any) (any, error) { return nil, nil }, nil)
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestShutdownDeadline(t *testing.T) {
	s, err := New(WithWorkers(1))
	require.NoError(t, err)
	s.Start()

	_, err = s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		fiber.Park(ctx, func() bool { return true })
		return nil, nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Shutdown(ctx)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

type flagWait struct {
	set       atomic.Bool
	published atomic.Bool
	parked    atomic.Pointer[fiber.Fiber]
}

func (w *flagWait) TryComplete(*fiber.Fiber, any) bool { return w.set.Load() }

func (w *flagWait) Publish(f *fiber.Fiber, _ any) {
	w.published.Store(true)
	w.parked.Store(f)
}

func (w *flagWait) Unpublish(*fiber.Fiber) { w.published.Store(false) }

func (w *flagWait) Park(ctx context.Context, f *fiber.Fiber, io any) {
	fiber.Park(ctx, func() bool { return !w.TryComplete(f, io) })
}

func (w *flagWait) fire() {
	w.set.Store(true)
	if f := w.parked.Load(); f != nil {
		fiber.Unpark(f, nil)
	}
}

func TestWaitBoundary(t *testing.T) {
	s := newScheduler(t, WithWorkers(2))

	w := &flagWait{}
	f, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		return Wait(ctx, w, nil)
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := w.parked.Load()
		return p != nil && p.State() == fiber.Parked
	}, 2*time.Second, time.Millisecond)
	w.fire()

	res, err := s.Join(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, WaitResumed, res)
	assert.False(t, w.published.Load())
	assert.GreaterOrEqual(t, s.Stats().Total().Parks, uint64(1))

	ready := &flagWait{}
	ready.set.Store(true)
	f, err = s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		return Wait(ctx, ready, nil)
	}, nil)
	require.NoError(t, err)
	res, err = s.Join(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, WaitImmediate, res)
	assert.False(t, ready.published.Load())

	_, err = Wait(context.Background(), ready, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestBudgetAdapts(t *testing.T) {
	var b budget
	assert.EqualValues(t, joinBudgetInit, b.get())
	for i := 0; i < 100; i++ {
		b.observe(0)
	}
	assert.EqualValues(t, joinBudgetMin, b.get())
	for i := 0; i < 200; i++ {
		b.observe(1 << 20)
	}
	assert.EqualValues(t, joinBudgetMax, b.get())
}

func TestSpawnNilEntry(t *testing.T) {
	s := newScheduler(t, WithWorkers(1))
	_, err := s.Spawn(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.EqualValues(t, 0, s.Live())
}

func TestJoinReleaseAfterFinish(t *testing.T) {
	s := newScheduler(t, WithWorkers(4))
	const rounds = 5000
	body := func(_ context.Context, arg any) (any, error) { return arg, nil }

	var g errgroup.Group
	for p := 0; p < 4; p++ {
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				f, err := s.Spawn(context.Background(), body, i)
				if err != nil {
					return err
				}
				v, err := s.Join(context.Background(), f)
				if err != nil {
					return err
				}
				if v.(int) != i {
					return errors.New("joined a recycled fiber")
				}
			}
			return nil
		})
	}
	joiner, err := s.Spawn(context.Background(), func(ctx context.Context, _ any) (any, error) {
		for i := 0; i < rounds; i++ {
			f, err := s.Spawn(ctx, body, i)
			if err != nil {
				return nil, err
			}
			v, err := s.Join(ctx, f)
			if err != nil {
				return nil, err
			}
			if v.(int) != i {
				return nil, errors.New("joined a recycled fiber")
			}
		}
		return nil, nil
	}, nil)
	require.NoError(t, err)
	g.Go(func() error {
		_, err := s.Join(context.Background(), joiner)
		return err
	})
	require.NoError(t, g.Wait())
}

func TestStatsDumpFields(t *testing.T) {
	log := logging.New("debug")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	s, err := New(WithWorkers(2), WithStats(true), WithLogger(log))
	require.NoError(t, err)
	s.Start()
	for i := 0; i < 10; i++ {
		f, err := s.Spawn(context.Background(), func(context.Context, any) (any, error) { return nil, nil }, nil)
		require.NoError(t, err)
		_, err = s.Join(context.Background(), f)
		require.NoError(t, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	out := buf.String()
	assert.Contains(t, out, "worker stopped")
	assert.Contains(t, out, "worker=0")
	assert.Contains(t, out, "worker=1")
	assert.Contains(t, out, "workers=2")
	assert.Contains(t, out, "total")
}
