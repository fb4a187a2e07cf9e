// Package promcollector exports store metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/barca7453/ContextMemory"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements contextmemory.MetricsCollector with Prometheus
// counters, histograms and gauges.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	batchItems  *prometheus.CounterVec
	saveBytes   prometheus.Counter
	loadEntries prometheus.Gauge
	capacity    prometheus.Gauge
	grows       prometheus.Counter
}

var _ contextmemory.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. namespace
// prefixes every metric name; "contextmemory" is used when it is empty.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = "contextmemory"
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of store operations",
			// From a cached search (microseconds) to a full save (seconds).
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total store operations by outcome",
		}, []string{"op", "status"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_entries_total",
			Help:      "Batch entries by outcome",
		}, []string{"status"}),
		saveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_bytes_total",
			Help:      "Bytes written by successful saves",
		}),
		loadEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_entries",
			Help:      "Entry count of the last successful load",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_capacity",
			Help:      "Index capacity after the last growth",
		}),
		grows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_grows_total",
			Help:      "Total index capacity doublings",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.opLatency, c.ops, c.batchItems, c.saveBytes, c.loadEntries, c.capacity, c.grows,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	c.ops.WithLabelValues(op, status(err)).Inc()
}

// RecordInsert implements contextmemory.MetricsCollector.
func (c *Collector) RecordInsert(d time.Duration, err error) {
	c.observe("insert", d, err)
}

// RecordBatchInsert implements contextmemory.MetricsCollector.
func (c *Collector) RecordBatchInsert(count, failed int, d time.Duration) {
	c.observe("batch_insert", d, nil)
	c.batchItems.WithLabelValues("accepted").Add(float64(count - failed))
	c.batchItems.WithLabelValues("skipped").Add(float64(failed))
}

// RecordSearch implements contextmemory.MetricsCollector.
func (c *Collector) RecordSearch(_ int, d time.Duration, err error) {
	c.observe("search", d, err)
}

// RecordSave implements contextmemory.MetricsCollector.
func (c *Collector) RecordSave(bytes int64, d time.Duration, err error) {
	c.observe("save", d, err)
	if err == nil {
		c.saveBytes.Add(float64(bytes))
	}
}

// RecordLoad implements contextmemory.MetricsCollector.
func (c *Collector) RecordLoad(entries int, d time.Duration, err error) {
	c.observe("load", d, err)
	if err == nil {
		c.loadEntries.Set(float64(entries))
	}
}

// RecordGrow implements contextmemory.MetricsCollector.
func (c *Collector) RecordGrow(_, to int, d time.Duration) {
	c.opLatency.WithLabelValues("grow").Observe(d.Seconds())
	c.grows.Inc()
	c.capacity.Set(float64(to))
}
