// Package metrics exports index counters and request timings to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seqtree"

// Source is what the collectors read on every scrape.
type Source interface {
	Stats() tree.StatsSnapshot
	Len() int
	Distinct() int
}

// Metrics owns a private registry so several servers in one process (tests)
// never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New registers tree counters read from src plus request metrics.
func New(src Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "IPC requests by action and status code.",
		}, []string{"action", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "IPC request handling time by action.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"action"}),
	}

	counter := func(name, help string, read func(tree.StatsSnapshot) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	gauge := func(name, help string, read func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, read)
	}

	m.registry.MustRegister(
		m.requests,
		m.latency,
		counter("nodes_created_total", "Tree nodes linked.",
			func(s tree.StatsSnapshot) int64 { return s.NodesCreated }),
		counter("nodes_pruned_total", "Tree nodes unlinked by removal or compaction.",
			func(s tree.StatsSnapshot) int64 { return s.NodesPruned }),
		counter("lost_node_races_total", "Child slots lost to a concurrent creator.",
			func(s tree.StatsSnapshot) int64 { return s.LostNodeRaces }),
		counter("payload_retries_total", "Payload installs retried after contention.",
			func(s tree.StatsSnapshot) int64 { return s.PayloadRetries }),
		gauge("tree_live_nodes", "Tree nodes currently linked.",
			func() float64 { return float64(src.Stats().LiveNodes()) }),
		gauge("segments", "Named segments loaded.",
			func() float64 { return float64(src.Len()) }),
		gauge("distinct_sequences", "Distinct indexed sequences.",
			func() float64 { return float64(src.Distinct()) }),
	)
	return m
}

// ObserveRequest records one handled request. A nil Metrics ignores it.
func (m *Metrics) ObserveRequest(action string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(action, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(action).Observe(elapsed.Seconds())
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
