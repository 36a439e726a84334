package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBlaze/blazert/sched"
)

type fixedStats sched.Stats

func (f fixedStats) Stats() sched.Stats { return sched.Stats(f) }

func TestLatencyHistogram(t *testing.T) {
	m := New()
	m.ObserveSince(OpSend, time.Now().Add(-time.Millisecond))
	m.ObserveSince(OpRecv, time.Now())
	m.Parked(OpRecv)

	mfs, err := m.Gather()
	require.NoError(t, err)
	byName := map[string]int{}
	for _, mf := range mfs {
		byName[mf.GetName()] = len(mf.GetMetric())
	}
	assert.Equal(t, 2, byName["blazert_channel_slow_path_seconds"])
	assert.Equal(t, 1, byName["blazert_channel_parks_total"])
}

func TestSchedulerCollector(t *testing.T) {
	m := New()
	c, err := m.RegisterScheduler(fixedStats{
		Workers: []sched.WorkerStats{{ID: 0, Executed: 5, Stolen: 2}, {ID: 1, Executed: 3}},
		Pending: 4,
		Live:    7,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, `blazert_sched_executed_total{worker="0"} 5`)
	assert.Contains(t, out, `blazert_sched_stolen_total{worker="0"} 2`)
	assert.Contains(t, out, `blazert_sched_executed_total{worker="1"} 3`)
	assert.Contains(t, out, "blazert_sched_live 7")
	assert.Contains(t, out, "blazert_sched_pending 4")

	assert.True(t, m.Unregister(c))
	buf.Reset()
	require.NoError(t, m.Dump(&buf))
	assert.NotContains(t, buf.String(), "blazert_sched_live")
}

func TestDefaultSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
