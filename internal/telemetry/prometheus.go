package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/hashroot"
)

var _ hashroot.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector implements hashroot.MetricsCollector on Prometheus
// counters and histograms.
type PrometheusCollector struct {
	batchLatency *prometheus.HistogramVec
	records      *prometheus.CounterVec
	denied       prometheus.Counter
	collapses    *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	exports      *prometheus.CounterVec
	exportBytes  prometheus.Counter
	syncs        *prometheus.CounterVec
}

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg selects prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hashroot_batch_duration_seconds",
			Help:    "Latency of ingestion calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashroot_records_total",
			Help: "Records offered for ingestion",
		}, []string{"result"}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hashroot_denied_total",
			Help: "Ingestions refused by the authorization gate",
		}),
		collapses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashroot_collapses_total",
			Help: "Level collapses by source level",
		}, []string{"level"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashroot_evictions_total",
			Help: "Index entries removed",
		}, []string{"reason"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashroot_exports_total",
			Help: "Snapshot writes",
		}, []string{"status"}),
		exportBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hashroot_export_bytes_total",
			Help: "Bytes of snapshots written",
		}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hashroot_syncs_total",
			Help: "External sync outcomes",
		}, []string{"syncer", "status"}),
	}

	for _, m := range []prometheus.Collector{
		c.batchLatency, c.records, c.denied, c.collapses,
		c.evictions, c.exports, c.exportBytes, c.syncs,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordBatch implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordBatch(accepted, skipped int, d time.Duration) {
	status := "success"
	if skipped > 0 {
		status = "partial"
	}
	c.batchLatency.WithLabelValues(status).Observe(d.Seconds())
	c.records.WithLabelValues("accepted").Add(float64(accepted))
	c.records.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordDenied implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordDenied() {
	c.denied.Inc()
}

// RecordCollapse implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordCollapse(from int) {
	c.collapses.WithLabelValues(strconv.Itoa(from)).Inc()
}

// RecordEviction implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordEviction(reason string) {
	c.evictions.WithLabelValues(reason).Inc()
}

// RecordExport implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordExport(bytes int, _ time.Duration, err error) {
	if err != nil {
		c.exports.WithLabelValues("error").Inc()
		return
	}
	c.exports.WithLabelValues("success").Inc()
	c.exportBytes.Add(float64(bytes))
}

// RecordSync implements hashroot.MetricsCollector.
func (c *PrometheusCollector) RecordSync(syncer string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.syncs.WithLabelValues(syncer, status).Inc()
}
