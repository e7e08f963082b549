// Package metrics exposes Prometheus collectors for price resolution, refresh runs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/usecase"
)

const namespace = "cartcost"

// Metrics implements usecase.ResolutionObserver and usecase.RefreshObserver.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolutions     *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	rowsWritten     prometheus.Gauge
	lastRefresh     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var (
	_ usecase.ResolutionObserver = (*Metrics)(nil)
	_ usecase.RefreshObserver    = (*Metrics)(nil)
)

// New creates the collectors on a dedicated registry that also carries the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_resolutions_total",
			Help:      "Price resolutions by outcome.",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Price source lookups by source and result.",
		}, []string{"source", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Histogram of price source lookup durations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Refresh runs by status.",
		}, []string{"status"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Histogram of refresh run durations.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		rowsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_rows_written",
			Help:      "Rows written by the last successful refresh.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.resolutions,
		m.fetches,
		m.fetchDuration,
		m.refreshRuns,
		m.refreshDuration,
		m.rowsWritten,
		m.lastRefresh,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveResolution implements usecase.ResolutionObserver
func (m *Metrics) ObserveResolution(outcome usecase.Outcome) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(outcome)).Inc()
}

// ObserveFetch implements usecase.RefreshObserver
func (m *Metrics) ObserveFetch(source string, found bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "not_found"
	if found {
		result = "found"
	}
	m.fetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRefresh implements usecase.RefreshObserver
func (m *Metrics) ObserveRefresh(report domain.RefreshReport, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.refreshRuns.WithLabelValues("failed").Inc()
		return
	}
	m.refreshRuns.WithLabelValues("succeeded").Inc()
	if !report.FinishedAt.IsZero() {
		m.refreshDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		m.lastRefresh.Set(float64(report.FinishedAt.Unix()))
	}
	m.rowsWritten.Set(float64(report.RowsWritten))
}

// GinMiddleware records request counts and durations by matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
