package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks cache activity. It implements memory.Observer.
type CacheMetrics struct {
	entries        prometheus.Gauge
	hits           prometheus.Counter
	misses         prometheus.Counter
	sets           prometheus.Counter
	removals       prometheus.Counter
	expirations    prometheus.Counter
	cleared        prometheus.Counter
	checkpoints    *prometheus.CounterVec
	checkpointTime prometheus.Observer
	checkpointSize prometheus.Gauge
	checkpointLast prometheus.Gauge
}

// NewCacheMetrics initializes cache metrics with the collector
func NewCacheMetrics(collector *Collector) *CacheMetrics {
	return &CacheMetrics{
		entries: collector.RegisterGauge(
			MetricCacheEntries,
			"Number of records currently held",
			nil,
		).WithLabelValues(),
		hits: collector.RegisterCounter(
			MetricCacheHitsTotal,
			"Total lookups that found a record",
			nil,
		).WithLabelValues(),
		misses: collector.RegisterCounter(
			MetricCacheMissesTotal,
			"Total lookups that found no record",
			nil,
		).WithLabelValues(),
		sets: collector.RegisterCounter(
			MetricCacheSetsTotal,
			"Total inserts and replacements",
			nil,
		).WithLabelValues(),
		removals: collector.RegisterCounter(
			MetricCacheRemovalsTotal,
			"Total explicit removals",
			nil,
		).WithLabelValues(),
		expirations: collector.RegisterCounter(
			MetricCacheExpirationsTotal,
			"Total records removed by their expiry callback",
			nil,
		).WithLabelValues(),
		cleared: collector.RegisterCounter(
			MetricCacheClearedTotal,
			"Total records dropped by clear",
			nil,
		).WithLabelValues(),
		checkpoints: collector.RegisterCounter(
			MetricCheckpointsTotal,
			"Total checkpoints by status",
			[]string{LabelStatus},
		),
		checkpointTime: collector.RegisterHistogram(
			MetricCheckpointDuration,
			"Checkpoint latency in seconds",
			nil,
			nil,
		).WithLabelValues(),
		checkpointSize: collector.RegisterGauge(
			MetricCheckpointEntries,
			"Number of entries in the last successful checkpoint",
			nil,
		).WithLabelValues(),
		checkpointLast: collector.RegisterGauge(
			MetricCheckpointLastSuccess,
			"Unix time of the last successful checkpoint",
			nil,
		).WithLabelValues(),
	}
}

func (m *CacheMetrics) Hit(string)    { m.hits.Inc() }
func (m *CacheMetrics) Miss(string)   { m.misses.Inc() }
func (m *CacheMetrics) Set(string)    { m.sets.Inc() }
func (m *CacheMetrics) Remove(string) { m.removals.Inc() }
func (m *CacheMetrics) Expire(string) { m.expirations.Inc() }

// Clear records the number of records dropped by a clear
func (m *CacheMetrics) Clear(removed int) {
	m.cleared.Add(float64(removed))
}

// Entries sets the current record count
func (m *CacheMetrics) Entries(n int) {
	m.entries.Set(float64(n))
}

// RecordCheckpoint records the outcome of a checkpoint
func (m *CacheMetrics) RecordCheckpoint(entries int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.checkpointTime.Observe(duration.Seconds())
	if err != nil {
		m.checkpoints.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.checkpoints.WithLabelValues(StatusSuccess).Inc()
	m.checkpointSize.Set(float64(entries))
	m.checkpointLast.Set(float64(time.Now().Unix()))
}
