package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("nonsense").GetLevel())
}

func TestFormatHelpers(t *testing.T) {
	l := New("trace")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Warn("worker %d idle", 3)
	out := buf.String()
	assert.Contains(t, out, "worker 3 idle")
	assert.Regexp(t, `\w+\.go:\d+`, out)
}

func TestDefaultLogger(t *testing.T) {
	l := L()
	require.NotNil(t, l)
	assert.Same(t, l, L())

	mine := New("error")
	SetDefault(mine)
	t.Cleanup(func() { SetDefault(l) })
	assert.Same(t, mine, L())
}

func TestWorkerFields(t *testing.T) {
	l := New("debug")
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	l.Worker(3).With(Fields{"stolen": 7}).Info("worker %s", "stats")
	out := buf.String()
	assert.Contains(t, out, "worker stats")
	assert.Contains(t, out, "worker=3")
	assert.Contains(t, out, "stolen=7")

	buf.Reset()
	l.SetLevel(logrus.InfoLevel)
	l.Worker(1).Debug("hidden")
	assert.Empty(t, buf.String())
}
