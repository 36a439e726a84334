package sched

import (
	"fmt"
	"runtime"

	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/logging"
)

const (
	// LocalQueueSize is the default capacity of each worker's deque.
	LocalQueueSize = 256
	// GlobalQueueSize is the default capacity of the global run queue.
	GlobalQueueSize = 65536
	MaxWorkers      = 64
	// WorkerBatchSize bounds how many extra fibers a worker pulls from the
	// global queue after a hit.
	WorkerBatchSize = 16

	SpinFastIters  = 32
	SpinYieldIters = 64
)

type options struct {
	workers    int
	localSize  int
	globalSize int
	log        *logging.Logger
	stats      bool
}

// Option configures New.
type Option interface {
	apply(*options) error
}

type optionFunc func(*options) error

func (f optionFunc) apply(o *options) error { return f(o) }

// WithWorkers sets the worker count, clamped to [1, MaxWorkers]. Zero
// means runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) error {
		if n < 0 {
			return fmt.Errorf("sched: negative worker count %d: %w", n, errs.ErrInvalidArgument)
		}
		o.workers = n
		return nil
	})
}

// WithLocalQueueSize sets the capacity of each worker deque.
func WithLocalQueueSize(n int) Option {
	return optionFunc(func(o *options) error {
		if n < 1 {
			return fmt.Errorf("sched: local queue size %d: %w", n, errs.ErrInvalidArgument)
		}
		o.localSize = n
		return nil
	})
}

// WithGlobalQueueSize sets the capacity of the global run queue.
func WithGlobalQueueSize(n int) Option {
	return optionFunc(func(o *options) error {
		if n < 2 {
			return fmt.Errorf("sched: global queue size %d: %w", n, errs.ErrInvalidArgument)
		}
		o.globalSize = n
		return nil
	})
}

// WithLogger sets the logger for lifecycle messages and the stats dump.
func WithLogger(l *logging.Logger) Option {
	return optionFunc(func(o *options) error {
		o.log = l
		return nil
	})
}

// WithStats dumps per-worker counters through the logger at shutdown.
func WithStats(enabled bool) Option {
	return optionFunc(func(o *options) error {
		o.stats = enabled
		return nil
	})
}

func resolveOptions(opts []Option) (*options, error) {
	o := &options{
		localSize:  LocalQueueSize,
		globalSize: GlobalQueueSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	if o.workers == 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if o.workers > MaxWorkers {
		o.workers = MaxWorkers
	}
	if o.log == nil {
		o.log = logging.L()
	}
	return o, nil
}
