package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/iotd-api/pkg/iotd"
	"github.com/noah-isme/iotd-api/pkg/jobs"
)

// Promotion outcomes used as the "outcome" label.
const (
	OutcomePromoted  = "promoted"
	OutcomeRetracted = "retracted"
	OutcomeRejected  = "rejected"
)

// MetricsSnapshot is a cheap in-process summary exposed next to /metrics.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Promotions               uint64    `json:"promotions"`
	Rejections               uint64    `json:"rejections"`
	ExpirationErrors         uint64    `json:"expiration_errors"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for the IOTD API.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	promotions       *prometheus.CounterVec
	visibility       *prometheus.CounterVec
	expirationErrors *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	promotionCount       uint64
	rejectionCount       uint64
	expirationErrorCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iotd_promotions_total",
		Help: "Promotion attempts by stage and outcome",
	}, []string{"stage", "outcome", "reason"})

	visibility := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iotd_visibility_actions_total",
		Help: "Hide, unhide and dismiss actions",
	}, []string{"action"})

	expirationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iotd_expiration_errors_total",
		Help: "Queue entries whose stage timestamp could not be parsed",
	}, []string{"stage"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses, promotions, visibility, expirationErrors, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		promotions:       promotions,
		visibility:       visibility,
		expirationErrors: expirationErrors,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// WatchQueue exports the counters of a background job queue as gauges
// labelled with name.
func (m *MetricsService) WatchQueue(name string, stats func() jobs.Stats) error {
	if m == nil || stats == nil {
		return nil
	}
	gauges := map[string]func(jobs.Stats) float64{
		"pending":   func(s jobs.Stats) float64 { return float64(s.Pending) },
		"processed": func(s jobs.Stats) float64 { return float64(s.Processed) },
		"failed":    func(s jobs.Stats) float64 { return float64(s.Failed) },
		"dead":      func(s jobs.Stats) float64 { return float64(s.Dead) },
	}
	for kind, read := range gauges {
		read := read
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "job_queue_" + kind,
			Help:        "Background job queue " + kind + " count",
			ConstLabels: prometheus.Labels{"queue": name},
		}, func() float64 { return read(stats()) })
		if err := m.registry.Register(gauge); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordPromotion counts a promotion attempt. reason is the error code for
// rejections and empty otherwise.
func (m *MetricsService) RecordPromotion(stage iotd.Stage, outcome, reason string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(string(stage), outcome, reason).Inc()
	switch outcome {
	case OutcomePromoted:
		atomic.AddUint64(&m.promotionCount, 1)
	case OutcomeRejected:
		atomic.AddUint64(&m.rejectionCount, 1)
	}
}

// RecordVisibility counts hide, unhide and dismiss actions.
func (m *MetricsService) RecordVisibility(action string) {
	if m == nil {
		return
	}
	m.visibility.WithLabelValues(action).Inc()
}

// RecordExpirationError counts an unparseable stage timestamp.
func (m *MetricsService) RecordExpirationError(stage iotd.Stage) {
	if m == nil {
		return
	}
	m.expirationErrors.WithLabelValues(string(stage)).Inc()
	atomic.AddUint64(&m.expirationErrorCount, 1)
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	snapshot := MetricsSnapshot{
		RequestsTotal:    requests,
		Promotions:       atomic.LoadUint64(&m.promotionCount),
		Rejections:       atomic.LoadUint64(&m.rejectionCount),
		ExpirationErrors: atomic.LoadUint64(&m.expirationErrorCount),
		Goroutines:       runtime.NumGoroutine(),
		GeneratedAt:      time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	return snapshot
}
