package deadlock

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBlaze/blazert/logging"
)

func newTestDetector(abort bool) (*Detector, *clock.Mock, *atomic.Int32, *bytes.Buffer) {
	mock := clock.NewMock()
	var code atomic.Int32
	code.Store(-1)
	log := logging.New("info")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	d := New(
		WithClock(mock),
		WithTimeout(2*time.Second),
		WithAbort(abort),
		WithLogger(log),
		WithExit(func(c int) { code.Store(int32(c)) }),
	)
	return d, mock, &code, &buf
}

func TestEnterExitTable(t *testing.T) {
	d, _, _, _ := newTestDetector(true)
	a := d.Enter("recv on jobs")
	b := d.Enter("send on results")
	assert.EqualValues(t, 2, d.Blocked())

	rep := d.Report()
	assert.Contains(t, rep, "recv on jobs")
	assert.Contains(t, rep, "send on results")

	d.Exit(a)
	d.Exit(b)
	d.Exit(0)
	assert.EqualValues(t, 0, d.Blocked())
	assert.NotContains(t, d.Report(), "recv on jobs")
}

func TestAbortAfterTimeout(t *testing.T) {
	d, mock, code, buf := newTestDetector(true)
	d.stalledSince = mock.Now()
	d.Enter("recv on stuck")

	mock.Add(time.Second)
	d.tick()
	assert.EqualValues(t, -1, code.Load())

	mock.Add(1500 * time.Millisecond)
	d.tick()
	assert.EqualValues(t, ExitCode, code.Load())
	assert.Contains(t, buf.String(), "recv on stuck")
}

func TestProgressResetsEpisode(t *testing.T) {
	d, mock, code, _ := newTestDetector(true)
	d.stalledSince = mock.Now()
	d.Enter("recv")

	for i := 0; i < 10; i++ {
		mock.Add(time.Second)
		d.Progress()
		d.tick()
	}
	assert.EqualValues(t, -1, code.Load())
}

func TestWarnOncePerEpisode(t *testing.T) {
	d, mock, code, buf := newTestDetector(false)
	d.stalledSince = mock.Now()
	tok := d.Enter("select")

	mock.Add(3 * time.Second)
	d.tick()
	first := buf.Len()
	require.Positive(t, first)

	mock.Add(3 * time.Second)
	d.tick()
	assert.Equal(t, first, buf.Len())
	assert.EqualValues(t, -1, code.Load())

	d.Exit(tok)
	d.tick()
	d.Enter("select again")
	mock.Add(3 * time.Second)
	d.tick()
	assert.Greater(t, buf.Len(), first)
}

func TestWatchdogGoroutine(t *testing.T) {
	d, mock, code, _ := newTestDetector(true)
	d.Start()
	defer d.Stop()
	d.Enter("recv forever")

	require.Eventually(t, func() bool {
		mock.Add(TickInterval)
		return code.Load() == ExitCode
	}, 2*time.Second, time.Millisecond)
}

func TestActive(t *testing.T) {
	assert.Nil(t, Active())
	d := New()
	SetActive(d)
	t.Cleanup(func() { SetActive(nil) })
	assert.Same(t, d, Active())
}
