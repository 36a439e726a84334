package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.WakeDefer)
	assert.True(t, cfg.DeadlockAbort)
	assert.Equal(t, 10, cfg.DeadlockTimeout)
	assert.False(t, cfg.NoLockFree)
	assert.Positive(t, cfg.Workers)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("BLAZERT_CHAN_NO_LOCKFREE", "true")
	t.Setenv("BLAZERT_CHAN_WAKE_DEFER", "false")
	t.Setenv("BLAZERT_DEADLOCK_TIMEOUT", "3")
	t.Setenv("BLAZERT_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.NoLockFree)
	assert.False(t, cfg.WakeDefer)
	assert.Equal(t, 3, cfg.DeadlockTimeout)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("BLAZERT_DEADLOCK_TIMEOUT", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blazert.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 3\nchannel_timing = true\nlog_level = \"debug\"\n"), 0o600))
	t.Setenv("BLAZERT_WORKERS", "5")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.True(t, cfg.ChannelTiming)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSetAndGet(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	c := Default()
	c.SteadyEdgeWake = true
	Set(c)
	assert.Same(t, c, Get())

	Set(nil)
	assert.False(t, Get().SteadyEdgeWake)
}
