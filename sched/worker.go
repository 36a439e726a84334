package sched

import (
	"runtime"
	"sync/atomic"

	"github.com/GoBlaze/blazert/deque"
	"github.com/GoBlaze/blazert/fiber"
)

type worker struct {
	id      int
	s       *Scheduler
	local   *deque.Deque[fiber.Fiber]
	rng     uint64
	budget  budget
	current *fiber.Fiber

	executed   atomic.Uint64
	localPops  atomic.Uint64
	globalPops atomic.Uint64
	stolen     atomic.Uint64
	yields     atomic.Uint64
	parks      atomic.Uint64
	completed  atomic.Uint64
}

func (w *worker) run() {
	defer w.s.wg.Done()
	for w.s.running.Load() {
		f := w.find()
		if f == nil {
			w.idle()
			continue
		}
		w.execute(f)
	}
	w.s.log.Worker(w.id).With(w.snapshot().fields()).Debug("worker stopped")
}

func (w *worker) snapshot() WorkerStats {
	return WorkerStats{
		ID:         w.id,
		Executed:   w.executed.Load(),
		LocalPops:  w.localPops.Load(),
		GlobalPops: w.globalPops.Load(),
		Stolen:     w.stolen.Load(),
		Yields:     w.yields.Load(),
		Parks:      w.parks.Load(),
		Completed:  w.completed.Load(),
	}
}

func (w *worker) find() *fiber.Fiber {
	s := w.s
	if f := w.local.Pop(); f != nil {
		s.pending.Add(-1)
		w.localPops.Add(1)
		return f
	}
	if f := s.global.pop(); f != nil {
		s.pending.Add(-1)
		w.globalPops.Add(1)
		w.prefetch()
		return f
	}
	return w.steal()
}

// prefetch moves up to WorkerBatchSize fibers from the global queue to the
// local deque. They stay counted as pending.
func (w *worker) prefetch() {
	for i := 0; i < WorkerBatchSize; i++ {
		f := w.s.global.pop()
		if f == nil {
			return
		}
		if w.local.Push(f) != nil {
			w.s.global.push(f)
			return
		}
	}
}

func (w *worker) steal() *fiber.Fiber {
	s := w.s
	n := uint64(len(s.workers))
	if n < 2 {
		return nil
	}
	start := w.rand() % n
	for i := uint64(0); i < n; i++ {
		v := s.workers[(start+i)%n]
		if v == w {
			continue
		}
		if f := v.local.Steal(); f != nil {
			s.pending.Add(-1)
			w.stolen.Add(1)
			return f
		}
	}
	return nil
}

func (w *worker) rand() uint64 {
	x := w.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	w.rng = x
	return x
}

func (w *worker) idle() {
	s := w.s
	s.spinning.Add(1)
	for i := 0; i < SpinFastIters+SpinYieldIters; i++ {
		if s.pending.Load() > 0 || !s.running.Load() {
			s.spinning.Add(-1)
			return
		}
		if i >= SpinFastIters {
			runtime.Gosched()
		}
	}
	s.spinning.Add(-1)

	s.wakeMu.Lock()
	s.sleepers.Add(1)
	for s.pending.Load() == 0 && s.running.Load() {
		s.wakeCond.Wait()
	}
	s.sleepers.Add(-1)
	s.wakeMu.Unlock()
}

func (w *worker) execute(f *fiber.Fiber) {
	f.SetWorker(w)
	w.current = f
	r := fiber.SwitchTo(f)
	w.current = nil
	w.executed.Add(1)

	switch r {
	case fiber.ReasonYield:
		w.yields.Add(1)
		f.Requeue()
		w.s.submit(f)
	case fiber.ReasonPark:
		w.parks.Add(1)
		if f.CommitPark() {
			w.push(f)
		}
	case fiber.ReasonExit:
		w.completed.Add(1)
		f.Finish()
		w.s.exited()
	default:
		panic("BUG: unknown switch reason " + r.String())
	}
}

// push queues f on the local deque. Only the worker goroutine, or the
// fiber it is currently running, may call it.
func (w *worker) push(f *fiber.Fiber) {
	s := w.s
	s.pending.Add(1)
	if w.local.Push(f) != nil {
		s.global.push(f)
		if s.sleepers.Load() > 0 {
			s.wakeOne()
		}
		return
	}
	if s.spinning.Load() == 0 && s.sleepers.Load() > 0 {
		s.wakeOne()
	}
}
