// Package metrics exposes Prometheus counters for the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements account.CacheMetrics and reconcile.Metrics
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	reconciliations *prometheus.CounterVec
	entriesMigrated prometheus.Counter
}

// NewCollector registers every metric on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_http_responses_total",
			Help: "HTTP responses by status code",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todo_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_account_cache_hits_total",
			Help: "Account lookups served from the in-memory cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_account_cache_misses_total",
			Help: "Account lookups that loaded from storage",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_reconciliations_total",
			Help: "Guest reconciliation runs by outcome",
		}, []string{"outcome"}),
		entriesMigrated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todo_entries_migrated_total",
			Help: "Guest entries migrated into accounts",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.cacheHits,
		c.cacheMisses,
		c.reconciliations,
		c.entriesMigrated,
	)

	return c
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordRequestLatency(d time.Duration) {
	c.requestLatency.Observe(d.Seconds())
}

func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordReconciliation counts one run and the entries it moved
func (c *Collector) RecordReconciliation(outcome string, migrated int) {
	c.reconciliations.WithLabelValues(outcome).Inc()
	if migrated > 0 {
		c.entriesMigrated.Add(float64(migrated))
	}
}

// Middleware records the status code and latency of every response
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.RecordHTTPStatus(status)
		c.RecordRequestLatency(time.Since(start))
	})
}

// Handler serves the Prometheus scrape endpoint
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
