package config

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every recognised environment variable.
const EnvPrefix = "BLAZERT_"

// Config holds the process-wide runtime switches.
type Config struct {
	// NoLockFree forces every channel onto the mutex/array path.
	NoLockFree bool `toml:"no_lockfree" env:"CHAN_NO_LOCKFREE"`
	// SteadyEdgeWake wakes fast-path waiters only when the queue leaves
	// the empty or full state.
	SteadyEdgeWake bool `toml:"steady_edge_wake" env:"CHAN_STEADY_EDGE_WAKE"`
	// WakeDefer batches wakeups until the channel operation unlocks.
	WakeDefer bool `toml:"wake_defer" env:"CHAN_WAKE_DEFER"`

	DeadlockDetect bool `toml:"deadlock_detect" env:"DEADLOCK_DETECT"`
	DeadlockAbort  bool `toml:"deadlock_abort" env:"DEADLOCK_ABORT"`
	// DeadlockTimeout is in seconds.
	DeadlockTimeout int `toml:"deadlock_timeout" env:"DEADLOCK_TIMEOUT"`

	ChannelTiming bool `toml:"channel_timing" env:"CHANNEL_TIMING"`
	SchedStats    bool `toml:"sched_stats" env:"SCHED_STATS"`

	Workers  int    `toml:"workers" env:"WORKERS"`
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WakeDefer:       true,
		DeadlockAbort:   true,
		DeadlockTimeout: 10,
		Workers:         runtime.GOMAXPROCS(0),
		LogLevel:        "info",
	}
}

// Load returns the defaults overridden by the environment.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a TOML file on top of the defaults, then applies the
// environment, which wins over the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate rejects values the runtime cannot honour.
func (c *Config) Validate() error {
	if c.DeadlockTimeout <= 0 {
		return fmt.Errorf("config: deadlock timeout must be positive, got %d", c.DeadlockTimeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: negative worker count %d", c.Workers)
	}
	return nil
}

var (
	current atomic.Pointer[Config]

	fromEnv = sync.OnceValues(Load)
)

// Get returns the process-wide configuration, loading it from the
// environment on first use. An unparsable environment falls back to the
// defaults; LoadError reports why.
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	c, err := fromEnv()
	if err != nil || c == nil {
		c = Default()
	}
	current.CompareAndSwap(nil, c)
	return current.Load()
}

// LoadError returns the error from the first environment load, if any.
func LoadError() error {
	_, err := fromEnv()
	return err
}

// Set replaces the process-wide configuration. Channels created earlier
// keep the switches they were created with.
func Set(c *Config) {
	if c == nil {
		c = Default()
	}
	current.Store(c)
}
