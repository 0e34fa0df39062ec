package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
)

// Scan and confirmation outcomes used as metric labels.
const (
	OutcomeOK         = "ok"
	OutcomeUnreadable = "unreadable"
	OutcomeNotFound   = "not_found"
	OutcomeThrottled  = "throttled"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// MetricsService owns the Prometheus registry and keeps a few counters for
// the JSON snapshot endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	scans           *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	numberingRetry  *prometheus.CounterVec
	confirmLatency  *prometheus.HistogramVec
	registrations   *prometheus.CounterVec
	paymentsAmount  prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	scanCount            uint64
	confirmCount         uint64
	renumberCount        uint64
}

// NewMetricsService registers the service collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_scans_total",
			Help: "QR scans received, by outcome",
		}, []string{"outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_confirmations_total",
			Help: "Attendance confirmations, by numbering strategy and outcome",
		}, []string{"strategy", "outcome", "reconfirm"}),
		numberingRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_numbering_retries_total",
			Help: "Attendance number collisions retried",
		}, []string{"strategy"}),
		confirmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkin_confirm_duration_seconds",
			Help:    "Time to assign an attendance number",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Attendees registered, by source",
		}, []string{"source"}),
		paymentsAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_amount_total",
			Help: "Sum of recorded payments",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHits, m.cacheMisses, m.scans, m.confirmations, m.numberingRetry, m.confirmLatency, m.registrations, m.paymentsAmount, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup.
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

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordScan counts a scan by outcome.
func (m *MetricsService) RecordScan(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.scanCount, 1)
}

// RecordConfirmation counts a confirmation attempt.
func (m *MetricsService) RecordConfirmation(strategy, outcome string, reconfirm bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(strategy, outcome, fmt.Sprintf("%t", reconfirm)).Inc()
	m.confirmLatency.WithLabelValues(strategy).Observe(duration.Seconds())
	if outcome == OutcomeOK {
		atomic.AddUint64(&m.confirmCount, 1)
		if reconfirm {
			atomic.AddUint64(&m.renumberCount, 1)
		}
	}
}

// RecordNumberingRetry counts a unique violation that was retried.
func (m *MetricsService) RecordNumberingRetry(strategy string) {
	if m == nil {
		return
	}
	m.numberingRetry.WithLabelValues(strategy).Inc()
}

// RecordRegistration counts a new attendee.
func (m *MetricsService) RecordRegistration(source string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(source).Inc()
}

// RecordPayment adds amount to the payments total.
func (m *MetricsService) RecordPayment(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.paymentsAmount.Add(amount)
}

// Snapshot aggregates counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return dto.MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Scans:                    atomic.LoadUint64(&m.scanCount),
		Confirmations:            atomic.LoadUint64(&m.confirmCount),
		Renumbered:               atomic.LoadUint64(&m.renumberCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
