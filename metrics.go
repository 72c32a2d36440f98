package hashroot

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    batchCounter   prometheus.Counter
//	    exportHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordBatch(accepted, skipped int, d time.Duration) {
//	    p.batchCounter.Inc()
//	    // ... record skipped, duration, etc.
//	}
type MetricsCollector interface {
	// RecordBatch is called after each ingestion (batch or audio).
	// accepted and skipped count records, duration is the total time taken.
	RecordBatch(accepted, skipped int, duration time.Duration)

	// RecordDenied is called for every ingestion refused by the gate.
	RecordDenied()

	// RecordCollapse is called for every level collapse. from is the level
	// that collapsed.
	RecordCollapse(from int)

	// RecordEviction is called when the index drops an entry.
	RecordEviction(reason string)

	// RecordExport is called after each snapshot write.
	RecordExport(bytes int, duration time.Duration, err error)

	// RecordSync is called once per syncer after its retries are exhausted
	// or it succeeded.
	RecordSync(syncer string, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBatch(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordDenied()                          {}
func (NoopMetricsCollector) RecordCollapse(int)                     {}
func (NoopMetricsCollector) RecordEviction(string)                  {}
func (NoopMetricsCollector) RecordExport(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSync(string, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BatchCount      atomic.Int64
	RecordsAccepted atomic.Int64
	RecordsSkipped  atomic.Int64
	BatchTotalNanos atomic.Int64
	DeniedCount     atomic.Int64
	CollapseCount   atomic.Int64
	EvictionCount   atomic.Int64
	ExpiredCount    atomic.Int64
	ExportCount     atomic.Int64
	ExportErrors    atomic.Int64
	ExportBytes     atomic.Int64
	SyncCount       atomic.Int64
	SyncErrors      atomic.Int64
}

// RecordBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatch(accepted, skipped int, duration time.Duration) {
	b.BatchCount.Add(1)
	b.RecordsAccepted.Add(int64(accepted))
	b.RecordsSkipped.Add(int64(skipped))
	b.BatchTotalNanos.Add(duration.Nanoseconds())
}

// RecordDenied implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDenied() {
	b.DeniedCount.Add(1)
}

// RecordCollapse implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollapse(int) {
	b.CollapseCount.Add(1)
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(reason string) {
	if reason == "expired" {
		b.ExpiredCount.Add(1)
		return
	}
	b.EvictionCount.Add(1)
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(bytes int, _ time.Duration, err error) {
	b.ExportCount.Add(1)
	if err != nil {
		b.ExportErrors.Add(1)
		return
	}
	b.ExportBytes.Add(int64(bytes))
}

// RecordSync implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSync(_ string, err error) {
	b.SyncCount.Add(1)
	if err != nil {
		b.SyncErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BatchCount:      b.BatchCount.Load(),
		RecordsAccepted: b.RecordsAccepted.Load(),
		RecordsSkipped:  b.RecordsSkipped.Load(),
		BatchAvgNanos:   b.getAvgBatchNanos(),
		DeniedCount:     b.DeniedCount.Load(),
		CollapseCount:   b.CollapseCount.Load(),
		EvictionCount:   b.EvictionCount.Load(),
		ExpiredCount:    b.ExpiredCount.Load(),
		ExportCount:     b.ExportCount.Load(),
		ExportErrors:    b.ExportErrors.Load(),
		ExportBytes:     b.ExportBytes.Load(),
		SyncCount:       b.SyncCount.Load(),
		SyncErrors:      b.SyncErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgBatchNanos() int64 {
	count := b.BatchCount.Load()
	if count == 0 {
		return 0
	}
	return b.BatchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BatchCount      int64
	RecordsAccepted int64
	RecordsSkipped  int64
	BatchAvgNanos   int64
	DeniedCount     int64
	CollapseCount   int64
	EvictionCount   int64
	ExpiredCount    int64
	ExportCount     int64
	ExportErrors    int64
	ExportBytes     int64
	SyncCount       int64
	SyncErrors      int64
}
