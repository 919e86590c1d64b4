package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and ledger activity.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	loansOpened    prometheus.Counter
	loansReturned  prometheus.Counter
	loanRejections *prometheus.CounterVec
	penalties      prometheus.Counter
	reclassified   prometheus.Counter
	jobRuns        *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors on a private registry.
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

	loansOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loans_opened_total",
		Help: "Loans opened",
	})

	loansReturned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loans_returned_total",
		Help: "Loans returned",
	})

	loanRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loan_rejections_total",
		Help: "Loan operations refused by a ledger rule",
	}, []string{"reason"})

	penalties := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loan_penalties_total",
		Help: "Sum of penalties charged on return",
	})

	reclassified := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loans_overdue_reclassified_total",
		Help: "Loans moved from OPEN to OVERDUE by the sweep",
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by type and outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		loansOpened, loansReturned, loanRejections, penalties, reclassified, jobRuns, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		loansOpened:     loansOpened,
		loansReturned:   loansReturned,
		loanRejections:  loanRejections,
		penalties:       penalties,
		reclassified:    reclassified,
		jobRuns:         jobRuns,
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

// Registry exposes the underlying registry, mainly for tests.
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
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// LoanOpened counts a committed open.
func (m *MetricsService) LoanOpened() {
	if m == nil {
		return
	}
	m.loansOpened.Inc()
}

// LoanReturned counts a committed return and the penalty it charged.
func (m *MetricsService) LoanReturned(penalty decimal.Decimal) {
	if m == nil {
		return
	}
	m.loansReturned.Inc()
	m.penalties.Add(penalty.InexactFloat64())
}

// LoanRejected counts a refused ledger operation by error code.
func (m *MetricsService) LoanRejected(reason string) {
	if m == nil {
		return
	}
	m.loanRejections.WithLabelValues(reason).Inc()
}

// OverdueReclassified counts loans moved to OVERDUE by one sweep.
func (m *MetricsService) OverdueReclassified(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.reclassified.Add(float64(n))
}

// JobFinished counts one maintenance job run.
func (m *MetricsService) JobFinished(jobType string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.jobRuns.WithLabelValues(jobType, outcome).Inc()
}
