package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoBlaze/blazert/sched"
)

// StatsSource is anything that snapshots scheduler counters.
type StatsSource interface {
	Stats() sched.Stats
}

type schedCollector struct {
	src StatsSource

	executed   *prometheus.Desc
	localPops  *prometheus.Desc
	globalPops *prometheus.Desc
	stolen     *prometheus.Desc
	yields     *prometheus.Desc
	parks      *prometheus.Desc
	completed  *prometheus.Desc
	pending    *prometheus.Desc
	live       *prometheus.Desc
}

func workerDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "sched", name), help, []string{"worker"}, nil)
}

// RegisterScheduler exports the counters of src as const metrics. The
// returned collector can be passed to Unregister.
func (m *Metrics) RegisterScheduler(src StatsSource) (prometheus.Collector, error) {
	c := &schedCollector{
		src:        src,
		executed:   workerDesc("executed_total", "Fiber resumptions per worker."),
		localPops:  workerDesc("local_pops_total", "Fibers taken from the worker's own deque."),
		globalPops: workerDesc("global_pops_total", "Fibers taken from the global run queue."),
		stolen:     workerDesc("stolen_total", "Fibers stolen from other workers."),
		yields:     workerDesc("yields_total", "Cooperative yields handled."),
		parks:      workerDesc("parks_total", "Fiber parks handled."),
		completed:  workerDesc("completed_total", "Fibers that finished on the worker."),
		pending: prometheus.NewDesc(prometheus.BuildFQName(namespace, "sched", "pending"),
			"Queued runnable fibers.", nil, nil),
		live: prometheus.NewDesc(prometheus.BuildFQName(namespace, "sched", "live"),
			"Spawned fibers that have not finished.", nil, nil),
	}
	if err := m.reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Unregister removes a collector added by RegisterScheduler.
func (m *Metrics) Unregister(c prometheus.Collector) bool {
	if c == nil {
		return false
	}
	return m.reg.Unregister(c)
}

func (c *schedCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.executed, c.localPops, c.globalPops, c.stolen, c.yields, c.parks, c.completed, c.pending, c.live,
	} {
		ch <- d
	}
}

func (c *schedCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	for _, w := range st.Workers {
		id := strconv.Itoa(w.ID)
		ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(w.Executed), id)
		ch <- prometheus.MustNewConstMetric(c.localPops, prometheus.CounterValue, float64(w.LocalPops), id)
		ch <- prometheus.MustNewConstMetric(c.globalPops, prometheus.CounterValue, float64(w.GlobalPops), id)
		ch <- prometheus.MustNewConstMetric(c.stolen, prometheus.CounterValue, float64(w.Stolen), id)
		ch <- prometheus.MustNewConstMetric(c.yields, prometheus.CounterValue, float64(w.Yields), id)
		ch <- prometheus.MustNewConstMetric(c.parks, prometheus.CounterValue, float64(w.Parks), id)
		ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(w.Completed), id)
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.Pending))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(st.Live))
}
