package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoBlaze/blazert"
	"github.com/GoBlaze/blazert/logging"
	"github.com/GoBlaze/blazert/metrics"
)

func TestScenarios(t *testing.T) {
	log := logging.New("warn")
	log.SetOutput(&bytes.Buffer{})
	rt, err := blazert.New(blazert.WithWorkers(4), blazert.WithLogger(log), blazert.WithMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			detail, err := s.run(ctx, rt)
			require.NoError(t, err)
			t.Log(detail)
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
