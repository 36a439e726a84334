package sched

import (
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/GoBlaze/blazert/logging"
)

// WorkerStats are the counters of one worker.
type WorkerStats struct {
	ID         int
	Executed   uint64
	LocalPops  uint64
	GlobalPops uint64
	Stolen     uint64
	Yields     uint64
	Parks      uint64
	Completed  uint64
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Workers []WorkerStats
	Pending int64
	Live    int64
	Global  int
}

// Total sums the per-worker counters.
func (st Stats) Total() WorkerStats {
	t := WorkerStats{ID: -1}
	for _, w := range st.Workers {
		t.Executed += w.Executed
		t.LocalPops += w.LocalPops
		t.GlobalPops += w.GlobalPops
		t.Stolen += w.Stolen
		t.Yields += w.Yields
		t.Parks += w.Parks
		t.Completed += w.Completed
	}
	return t
}

// Stats returns a snapshot. Counters are read individually, so a snapshot
// taken while workers run is not atomic as a whole.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Workers: make([]WorkerStats, len(s.workers)),
		Pending: s.pending.Load(),
		Live:    s.live.Load(),
		Global:  s.global.len(),
	}
	for i, w := range s.workers {
		st.Workers[i] = w.snapshot()
	}
	return st
}

// DumpStats writes the per-worker counters through the logger.
func (s *Scheduler) DumpStats() {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)

	st := s.Stats()
	fmt.Fprintf(b, "scheduler stats: %d workers\n", len(st.Workers))
	b.WriteString("worker   executed  local  global  stolen  yields   parks  completed\n")
	for _, w := range append(st.Workers, st.Total()) {
		id := fmt.Sprint(w.ID)
		if w.ID < 0 {
			id = "total"
		}
		fmt.Fprintf(b, "%-6s %10d %6d %7d %7d %7d %7d %10d\n",
			id, w.Executed, w.LocalPops, w.GlobalPops, w.Stolen, w.Yields, w.Parks, w.Completed)
	}
	s.log.With(logging.Fields{
		"workers": len(st.Workers),
		"live":    st.Live,
		"pending": st.Pending,
		"global":  st.Global,
	}).Info("%s", b.String())
}

func (w WorkerStats) fields() logging.Fields {
	return logging.Fields{
		"executed":  w.Executed,
		"stolen":    w.Stolen,
		"parks":     w.Parks,
		"completed": w.Completed,
	}
}
