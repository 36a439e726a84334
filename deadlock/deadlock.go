// Package deadlock is a last-resort watchdog: it reports the program as
// stuck when some operation is blocked and nothing has made progress for a
// configured time.
package deadlock

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/benbjohnson/clock"
	"github.com/valyala/bytebufferpool"

	"github.com/GoBlaze/blazert/logging"
)

// ExitCode is the status the process exits with when abort is enabled.
const ExitCode = 124

// TickInterval is how often the watchdog samples the counters.
const TickInterval = 500 * time.Millisecond

// Token identifies one blocked operation between Enter and Exit.
type Token uint64

type entry struct {
	reason string
	since  time.Time
}

// Detector counts blocked operations and progress events.
type Detector struct {
	clock   clock.Clock
	log     *logging.Logger
	timeout time.Duration
	abort   bool
	exit    func(int)

	blocked  atomic.Int64
	progress atomic.Uint64
	nextID   atomic.Uint64
	table    *haxmap.Map[uint64, entry]

	// owned by the watchdog goroutine
	lastProgress uint64
	stalledSince time.Time
	fired        bool

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures New.
type Option func(*Detector)

func WithClock(c clock.Clock) Option { return func(d *Detector) { d.clock = c } }

func WithLogger(l *logging.Logger) Option { return func(d *Detector) { d.log = l } }

// WithTimeout sets how long the program may sit without progress.
func WithTimeout(t time.Duration) Option { return func(d *Detector) { d.timeout = t } }

// WithAbort selects exiting with ExitCode over warning once per episode.
func WithAbort(abort bool) Option { return func(d *Detector) { d.abort = abort } }

// WithExit replaces os.Exit.
func WithExit(fn func(int)) Option { return func(d *Detector) { d.exit = fn } }

// New builds a detector. It does not watch until Start.
func New(opts ...Option) *Detector {
	d := &Detector{
		clock:   clock.New(),
		timeout: 10 * time.Second,
		abort:   true,
		exit:    os.Exit,
		table:   haxmap.New[uint64, entry](),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.L()
	}
	return d
}

// Enter records a blocked operation.
func (d *Detector) Enter(reason string) Token {
	id := d.nextID.Add(1)
	d.table.Set(id, entry{reason: reason, since: d.clock.Now()})
	d.blocked.Add(1)
	return Token(id)
}

// Exit retracts a blocked operation.
func (d *Detector) Exit(t Token) {
	if t == 0 {
		return
	}
	d.table.Del(uint64(t))
	d.blocked.Add(-1)
}

// Progress records that some operation completed.
func (d *Detector) Progress() { d.progress.Add(1) }

// Blocked is the number of operations between Enter and Exit.
func (d *Detector) Blocked() int64 { return d.blocked.Load() }

// Start launches the watchdog goroutine.
func (d *Detector) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.lastProgress = d.progress.Load()
	d.stalledSince = d.clock.Now()
	t := d.clock.Ticker(TickInterval)
	go func() {
		defer close(d.done)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				d.tick()
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop ends the watchdog and waits for it.
func (d *Detector) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stop)
	<-d.done
}

func (d *Detector) tick() {
	now := d.clock.Now()
	p := d.progress.Load()
	if d.blocked.Load() == 0 || p != d.lastProgress {
		d.lastProgress = p
		d.stalledSince = now
		d.fired = false
		return
	}
	if d.fired || now.Sub(d.stalledSince) < d.timeout {
		return
	}
	d.fired = true
	d.log.Error("%s", d.Report())
	if d.abort {
		d.exit(ExitCode)
		return
	}
	d.log.Warn("deadlock watchdog: continuing; set abort to terminate stalled programs")
}

// Report renders the blocked table, oldest first.
func (d *Detector) Report() string {
	type row struct {
		id uint64
		e  entry
	}
	var rows []row
	d.table.ForEach(func(id uint64, e entry) bool {
		rows = append(rows, row{id, e})
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	now := d.clock.Now()
	fmt.Fprintf(b, "deadlock detected: %d blocked operation(s), no progress for %s\n",
		d.blocked.Load(), now.Sub(d.stalledSince).Truncate(time.Millisecond))
	for _, r := range rows {
		fmt.Fprintf(b, "  #%d %s (blocked %s)\n", r.id, r.e.reason, now.Sub(r.e.since).Truncate(time.Millisecond))
	}
	return b.String()
}

var active atomic.Pointer[Detector]

// Active returns the detector channel operations report to, or nil.
func Active() *Detector { return active.Load() }

// SetActive installs d as the process-wide detector; nil disables it.
func SetActive(d *Detector) { active.Store(d) }
