// Package sched is a work-stealing fiber scheduler.
//
// Each worker goroutine owns a Chase-Lev deque. Work is taken from the
// local deque first, then from the global run queue, then stolen from a
// random victim. Idle workers spin briefly and then sleep on a condition
// variable guarded by a pending-work counter.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/deque"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/logging"
)

// ErrSchedulerClosed is returned by Spawn after Shutdown.
var ErrSchedulerClosed = errors.New("sched: scheduler closed")

// Scheduler runs fibers on a fixed set of worker goroutines.
type Scheduler struct {
	opts    *options
	log     *logging.Logger
	workers []*worker
	global  *runq

	pending  atomic.Int64
	spinning atomic.Int32
	sleepers atomic.Int32
	live     atomic.Int64

	wakeMu   sync.Mutex
	wakeCond *sync.Cond

	started atomic.Bool
	running atomic.Bool
	closed  atomic.Bool
	quiet   chan struct{}
	wg      sync.WaitGroup

	joinBudget budget
}

// New builds a scheduler. Workers do not run until Start.
func New(opts ...Option) (*Scheduler, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		opts:   o,
		log:    o.log,
		global: newRunq(o.globalSize),
		quiet:  make(chan struct{}, 1),
	}
	s.wakeCond = sync.NewCond(&s.wakeMu)
	s.workers = make([]*worker, o.workers)
	for i := range s.workers {
		s.workers[i] = &worker{
			id:    i,
			s:     s,
			local: deque.New[fiber.Fiber](o.localSize),
			rng:   uint64(i+1) * 0x9E3779B97F4A7C15,
		}
	}
	return s, nil
}

// Start launches the workers. It is idempotent.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.running.Store(true)
	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		go w.run()
	}
	s.log.Debug("scheduler started with %d workers", len(s.workers))
}

// Workers returns the worker count.
func (s *Scheduler) Workers() int { return len(s.workers) }

// Live is the number of spawned fibers that have not finished.
func (s *Scheduler) Live() int64 { return s.live.Load() }

// Pending is the number of queued runnable fibers.
func (s *Scheduler) Pending() int64 { return s.pending.Load() }

// Spawn creates a fiber running entry(ctx', arg), where ctx' derives from
// ctx. When ctx belongs to a fiber on this scheduler the new fiber goes on
// that worker's deque; otherwise it is submitted to the global queue.
func (s *Scheduler) Spawn(ctx context.Context, entry fiber.Entry, arg any, opts ...fiber.Option) (*fiber.Fiber, error) {
	s.live.Add(1)
	if s.closed.Load() {
		s.exited()
		return nil, ErrSchedulerClosed
	}
	fo := make([]fiber.Option, 0, len(opts)+2)
	fo = append(fo, fiber.WithContext(ctx))
	fo = append(fo, opts...)
	fo = append(fo, fiber.WithRunner(s))
	f, err := fiber.New(entry, arg, fo...)
	if err != nil {
		s.exited()
		return nil, err
	}
	f.MarkReady()
	s.Ready(f, fiber.FromContext(ctx))
	return f, nil
}

// Ready queues a runnable fiber. It implements fiber.Runner.
func (s *Scheduler) Ready(f, from *fiber.Fiber) {
	if from != nil {
		if w, ok := from.Worker().(*worker); ok && w.s == s && w.current == from {
			w.push(f)
			return
		}
	}
	s.submit(f)
}

func (s *Scheduler) submit(f *fiber.Fiber) {
	s.pending.Add(1)
	s.global.push(f)
	if s.sleepers.Load() > 0 {
		s.wakeOne()
	}
}

func (s *Scheduler) wakeOne() {
	s.wakeMu.Lock()
	s.wakeCond.Signal()
	s.wakeMu.Unlock()
}

func (s *Scheduler) exited() {
	if s.live.Add(-1) == 0 {
		select {
		case s.quiet <- struct{}{}:
		default:
		}
	}
}

// Shutdown waits for every spawned fiber to finish, then stops the
// workers. If ctx ends first the workers are told to stop without waiting
// for fibers still running, and the context error is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.Start()

	var err error
	for {
		if err = s.waitQuiet(ctx); err != nil {
			break
		}
		s.closed.Store(true)
		if s.live.Load() == 0 {
			break
		}
	}
	s.closed.Store(true)

	if !s.running.CompareAndSwap(true, false) {
		return err
	}
	s.wakeMu.Lock()
	s.wakeCond.Broadcast()
	s.wakeMu.Unlock()
	if err != nil {
		s.log.Warn("scheduler shutdown abandoned %d live fibers: %v", s.live.Load(), err)
		return err
	}
	s.wg.Wait()
	if s.opts.stats {
		s.DumpStats()
	}
	s.log.Debug("scheduler stopped")
	return nil
}

func (s *Scheduler) waitQuiet(ctx context.Context) error {
	for s.live.Load() > 0 {
		select {
		case <-s.quiet:
		case <-ctx.Done():
			return fmt.Errorf("sched: shutdown with %d live fibers: %w", s.live.Load(), deadline.Err(ctx))
		}
	}
	return nil
}
