// Package metrics exports channel latency histograms and scheduler
// counters through a private Prometheus registry.
package metrics

import (
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/bytebufferpool"
)

const namespace = "blazert"

// Slow-path operation labels.
const (
	OpSend   = "send"
	OpRecv   = "recv"
	OpSelect = "select"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	reg     *prometheus.Registry
	latency *prometheus.HistogramVec
	parks   *prometheus.CounterVec
}

// New returns a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "slow_path_seconds",
			Help:      "Latency of channel operations that took the locked path.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
		parks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "parks_total",
			Help:      "Channel operations that parked their caller.",
		}, []string{"op"}),
	}
	m.reg.MustRegister(m.latency, m.parks)
	return m
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide Metrics channels report to.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultM = New() })
	return defaultM
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveSince records the latency of a slow-path op begun at start.
func (m *Metrics) ObserveSince(op string, start time.Time) {
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Parked counts a park on the slow path of op.
func (m *Metrics) Parked(op string) {
	m.parks.WithLabelValues(op).Inc()
}

// Gather collects the registry.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.reg.Gather()
}

// Dump renders the registry in the text exposition format.
func (m *Metrics) Dump(w io.Writer) error {
	mfs, err := m.Gather()
	if err != nil {
		return err
	}
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(b, mf); err != nil {
			return err
		}
	}
	_, err = b.WriteTo(w)
	return err
}
