// Package blazert ties the fiber scheduler, the channel engine and the
// ambient services (configuration, logging, metrics, deadlock watchdog)
// into one Runtime.
package blazert

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/multierr"

	"github.com/GoBlaze/blazert/channel"
	"github.com/GoBlaze/blazert/config"
	"github.com/GoBlaze/blazert/deadlock"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
	"github.com/GoBlaze/blazert/logging"
	"github.com/GoBlaze/blazert/metrics"
	"github.com/GoBlaze/blazert/safemap"
	"github.com/GoBlaze/blazert/sched"
)

// Runtime owns a started scheduler and the services around it.
type Runtime struct {
	cfg       *config.Config
	log       *logging.Logger
	sched     *sched.Scheduler
	metrics   *metrics.Metrics
	collector prometheus.Collector
	detector  *deadlock.Detector
	chans     *safemap.SafeMap[string, Closer]

	closed atomic.Bool
}

type settings struct {
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	detector *deadlock.Detector
	workers  int
}

// Option configures New.
type Option func(*settings)

// WithConfig runs the runtime under c and installs c as the process-wide
// configuration, so channels created afterwards see its switches.
func WithConfig(c *config.Config) Option { return func(s *settings) { s.cfg = c } }

func WithLogger(l *logging.Logger) Option { return func(s *settings) { s.log = l } }

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) Option { return func(s *settings) { s.workers = n } }

// WithMetrics exports scheduler counters to m instead of metrics.Default.
func WithMetrics(m *metrics.Metrics) Option { return func(s *settings) { s.metrics = m } }

// WithDetector installs d as the deadlock watchdog regardless of the
// deadlock_detect switch.
func WithDetector(d *deadlock.Detector) Option { return func(s *settings) { s.detector = d } }

// New builds and starts a runtime.
func New(opts ...Option) (*Runtime, error) {
	o := &settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	cfg := o.cfg
	if cfg == nil {
		cfg = config.Get()
	} else {
		config.Set(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := o.log
	if log == nil {
		log = logging.New(cfg.LogLevel)
	}
	workers := cfg.Workers
	if o.workers > 0 {
		workers = o.workers
	}

	s, err := sched.New(
		sched.WithWorkers(workers),
		sched.WithLogger(log),
		sched.WithStats(cfg.SchedStats),
	)
	if err != nil {
		return nil, fmt.Errorf("blazert: scheduler: %w", err)
	}

	rt := &Runtime{
		cfg:     cfg,
		log:     log,
		sched:   s,
		metrics: o.metrics,
		chans:   safemap.New[string, Closer](),
	}
	if rt.metrics == nil {
		rt.metrics = metrics.Default()
	}
	if rt.collector, err = rt.metrics.RegisterScheduler(s); err != nil {
		log.Warn("blazert: scheduler metrics not exported: %v", err)
	}

	rt.detector = o.detector
	if rt.detector == nil && cfg.DeadlockDetect {
		rt.detector = deadlock.New(
			deadlock.WithLogger(log),
			deadlock.WithTimeout(time.Duration(cfg.DeadlockTimeout)*time.Second),
			deadlock.WithAbort(cfg.DeadlockAbort),
		)
	}
	if rt.detector != nil {
		deadlock.SetActive(rt.detector)
		rt.detector.Start()
	}

	s.Start()
	log.Debug("blazert runtime up: %d workers, lock-free channels %v", s.Workers(), !cfg.NoLockFree)
	return rt, nil
}

func (rt *Runtime) Config() *config.Config { return rt.cfg }

func (rt *Runtime) Logger() *logging.Logger { return rt.log }

func (rt *Runtime) Scheduler() *sched.Scheduler { return rt.sched }

// Registry is the Prometheus registry the runtime reports to.
func (rt *Runtime) Registry() *prometheus.Registry { return rt.metrics.Registry() }

// Detector is the running deadlock watchdog, or nil.
func (rt *Runtime) Detector() *deadlock.Detector { return rt.detector }

// Spawn starts entry(ctx, arg) as a fiber.
func (rt *Runtime) Spawn(ctx context.Context, entry fiber.Entry, arg any, opts ...fiber.Option) (*fiber.Fiber, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return rt.sched.Spawn(ctx, entry, arg, opts...)
}

// Join waits for f and returns its result. The fiber is recycled after a
// successful join and must not be used again.
func (rt *Runtime) Join(ctx context.Context, f *fiber.Fiber) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return rt.sched.Join(ctx, f)
}

// Go runs fn as a fiber.
func (rt *Runtime) Go(ctx context.Context, fn func(ctx context.Context) error, opts ...fiber.Option) (*fiber.Fiber, error) {
	if fn == nil {
		return nil, fmt.Errorf("blazert: nil fiber body: %w", errs.ErrInvalidArgument)
	}
	return rt.Spawn(ctx, func(ctx context.Context, _ any) (any, error) {
		return nil, fn(ctx)
	}, nil, opts...)
}

// Run spawns entry and joins it.
func (rt *Runtime) Run(ctx context.Context, entry fiber.Entry, arg any) (any, error) {
	f, err := rt.Spawn(ctx, entry, arg)
	if err != nil {
		return nil, err
	}
	return rt.Join(ctx, f)
}

// Register names c so Lookup can find it. Registered channels are closed
// by Shutdown.
func (rt *Runtime) Register(name string, c Closer) error {
	if name == "" || c == nil {
		return fmt.Errorf("blazert: register %q: %w", name, errs.ErrInvalidArgument)
	}
	if _, stored := rt.chans.SetIfAbsent(name, c); !stored {
		return fmt.Errorf("blazert: %q already registered: %w", name, errs.ErrInvalidArgument)
	}
	return nil
}

func (rt *Runtime) Lookup(name string) (Closer, bool) { return rt.chans.Get(name) }

// Unregister drops name without closing it.
func (rt *Runtime) Unregister(name string) (Closer, bool) { return rt.chans.Take(name) }

// NewChan creates a channel named name and registers it with rt.
func NewChan[T any](rt *Runtime, name string, capacity int, opts ...channel.Option) (*channel.Chan[T], error) {
	opts = append(opts, channel.WithName(name))
	c, err := channel.New[T](capacity, opts...)
	if err != nil {
		return nil, err
	}
	if err := rt.Register(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Chan looks up a channel registered under name with element type T.
func Chan[T any](rt *Runtime, name string) (*channel.Chan[T], bool) {
	v, ok := rt.chans.Get(name)
	if !ok {
		return nil, false
	}
	c, ok := v.(*channel.Chan[T])
	return c, ok
}

// Shutdown waits for the live fibers, stops the workers and the watchdog,
// closes registered channels and, when channel_timing is set, logs the
// metrics registry. It is idempotent; later calls return nil.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := rt.sched.Shutdown(ctx)

	if rt.detector != nil {
		rt.detector.Stop()
		if deadlock.Active() == rt.detector {
			deadlock.SetActive(nil)
		}
	}

	for name, c := range rt.chans.Drain() {
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("blazert: close %q: %w", name, cerr))
		}
	}

	if rt.cfg.ChannelTiming {
		b := bytebufferpool.Get()
		if derr := rt.metrics.Dump(b); derr != nil {
			err = multierr.Append(err, fmt.Errorf("blazert: metrics dump: %w", derr))
		} else {
			rt.log.Info("%s", b.String())
		}
		bytebufferpool.Put(b)
	}
	rt.metrics.Unregister(rt.collector)
	rt.collector = nil
	return err
}

var (
	defaultBusy atomic.Bool
	defaultRT   atomic.Pointer[Runtime]
)

// Default returns the process-wide runtime, building it from the
// environment on first use.
func Default() *Runtime {
	for {
		if rt := defaultRT.Load(); rt != nil {
			return rt
		}
		if defaultBusy.CompareAndSwap(false, true) {
			rt, err := New()
			if err != nil {
				defaultBusy.Store(false)
				logging.L().Fatal("blazert: default runtime: %v", err)
				return nil
			}
			defaultRT.Store(rt)
			return rt
		}
		runtime.Gosched()
	}
}

// Teardown shuts the default runtime down. The next Default builds a new
// one.
func Teardown(ctx context.Context) error {
	rt := defaultRT.Load()
	if rt == nil {
		return nil
	}
	err := rt.Shutdown(ctx)
	defaultRT.Store(nil)
	defaultBusy.Store(false)
	return err
}
