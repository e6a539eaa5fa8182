// Package metrics exposes Prometheus metrics for campaign runs and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/outreach/internal/domain"
)

const namespace = "outreach"

// Metrics holds every collector of the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	itemsTotal     *prometheus.CounterVec
	stagesTotal    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	conflictsTotal prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		itemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Contacts processed by stage executors, partitioned by stage and result",
		}, []string{"stage", "result"}),
		stagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions partitioned by stage and resulting state",
		}, []string{"stage", "state"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage execution",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		conflictsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_conflicts_total",
			Help:      "Stage starts rejected because the user already has an active run",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Number of HTTP requests currently being served",
		}),
	}
}

// ItemProcessed counts one executor call.
func (m *Metrics) ItemProcessed(stage domain.Stage, ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	m.itemsTotal.WithLabelValues(string(stage), result).Inc()
}

// StageFinished records a completed stage boundary.
func (m *Metrics) StageFinished(stage domain.Stage, to domain.RunState, seconds float64) {
	m.stagesTotal.WithLabelValues(string(stage), string(to)).Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(seconds)
}

// Conflict counts a rejected start.
func (m *Metrics) Conflict() {
	m.conflictsTotal.Inc()
}

// Middleware records request count, latency and in-flight requests.
// The matched route template is used as label to keep cardinality low.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.httpRequests.With(labels).Inc()
		m.httpDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
