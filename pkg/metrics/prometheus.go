package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	remoteCalls *prometheus.CounterVec
	backfills   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_cache_hits_total",
				Help: "Requests fully served from the local column store",
			},
			[]string{"instrument", "timeframe"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_cache_misses_total",
				Help: "Requests that required a remote fetch",
			},
			[]string{"instrument", "timeframe"},
		),
		remoteCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_remote_calls_total",
				Help: "Rate-limited calls made to the market-data provider",
			},
			[]string{"instrument"},
		),
		backfills: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_descriptor_backfills_total",
				Help: "Descriptor-only backfills for legacy cached data",
			},
			[]string{"instrument"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barpull_operation_duration_seconds",
				Help:    "Duration of data-layer operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCacheHit counts one fully covered request.
func (r *Recorder) RecordCacheHit(instrumentID, timeframe string) {
	r.cacheHits.WithLabelValues(instrumentID, timeframe).Inc()
}

// RecordCacheMiss counts one request that went remote.
func (r *Recorder) RecordCacheMiss(instrumentID, timeframe string) {
	r.cacheMisses.WithLabelValues(instrumentID, timeframe).Inc()
}

// RecordRemoteCall counts one outbound provider call.
func (r *Recorder) RecordRemoteCall(instrumentID string) {
	r.remoteCalls.WithLabelValues(instrumentID).Inc()
}

// RecordBackfill counts one descriptor backfill.
func (r *Recorder) RecordBackfill(instrumentID string) {
	r.backfills.WithLabelValues(instrumentID).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
