package scanner

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ScanMetrics holds the Prometheus instruments for the file pipeline. The
// pipeline only emits counters; exposing them over HTTP is up to the host
// process.
type ScanMetrics struct {
	ScansTotal     *prometheus.CounterVec
	FilesProcessed *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	RateLimitWaits prometheus.Counter
	FallbackTotal  prometheus.Counter
	ScanDuration   prometheus.Histogram
}

var (
	metricsInstance *ScanMetrics
	metricsOnce     sync.Once
)

// Metrics returns the singleton scanner metrics instance.
func Metrics() *ScanMetrics {
	metricsOnce.Do(func() {
		metricsInstance = newScanMetrics()
		metricsInstance.register()
	})
	return metricsInstance
}

func newScanMetrics() *ScanMetrics {
	return &ScanMetrics{
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "scans_total",
				Help:      "Repository scans by outcome",
			},
			[]string{"outcome"},
		),
		FilesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "files_processed_total",
				Help:      "Files processed by outcome",
			},
			[]string{"outcome"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "cache_hits_total",
				Help:      "File cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "cache_misses_total",
				Help:      "File cache misses",
			},
		),
		RateLimitWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "rate_limit_waits_total",
				Help:      "Times the governor blocked for a quota reset",
			},
		),
		FallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "fallback_total",
				Help:      "Scans that fell back to the sequential path",
			},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "codepulse",
				Subsystem: "scanner",
				Name:      "scan_duration_seconds",
				Help:      "Whole-repository scan duration",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
	}
}

func (m *ScanMetrics) register() {
	prometheus.MustRegister(
		m.ScansTotal,
		m.FilesProcessed,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitWaits,
		m.FallbackTotal,
		m.ScanDuration,
	)
}
