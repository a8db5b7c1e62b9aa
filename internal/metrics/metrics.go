// Package metrics exposes ingestion and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koran-teknologi/koran/internal/ingest"
)

const namespace = "koran"

// Metrics owns a private registry so several instances can coexist in tests.
// It implements ingest.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	sourceFetches  *prometheus.CounterVec
	sourcePosts    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	deliveries     *prometheus.CounterVec
	deliveredPosts *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	lastCycle      prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New(version string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sourceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_fetches_total",
		Help:      "Source fetches by outcome.",
	}, []string{"source", "result"})
	m.sourcePosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_posts_total",
		Help:      "Posts returned by sources, split into fetched and new.",
	}, []string{"source", "kind"})
	m.sourceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_fetch_duration_seconds",
		Help:      "Time spent fetching one source.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"source"})
	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Sink deliveries by outcome.",
	}, []string{"sink", "result"})
	m.deliveredPosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivered_posts_total",
		Help:      "Posts handed to a sink successfully.",
	}, []string{"sink"})
	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Completed ingestion cycles by trigger.",
	}, []string{"trigger"})
	m.lastCycle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time of the last completed cycle.",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "endpoint", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	m.registry.MustRegister(
		m.sourceFetches, m.sourcePosts, m.sourceDuration,
		m.deliveries, m.deliveredPosts,
		m.cycles, m.lastCycle,
		m.httpRequests, m.httpDuration,
		info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is the registry every collector is registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveSource(r ingest.SourceReport) {
	result := "ok"
	if r.Err != nil {
		result = "error"
	}
	m.sourceFetches.WithLabelValues(r.Name, result).Inc()
	m.sourcePosts.WithLabelValues(r.Name, "fetched").Add(float64(r.Fetched))
	m.sourcePosts.WithLabelValues(r.Name, "new").Add(float64(r.New))
	m.sourceDuration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
}

func (m *Metrics) ObserveDelivery(sink string, posts int, err error) {
	if err != nil {
		m.deliveries.WithLabelValues(sink, "error").Inc()
		return
	}
	m.deliveries.WithLabelValues(sink, "ok").Inc()
	m.deliveredPosts.WithLabelValues(sink).Add(float64(posts))
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(trigger string, at time.Time) {
	m.cycles.WithLabelValues(trigger).Inc()
	m.lastCycle.Set(float64(at.Unix()))
}

// Middleware records request counts and latencies by route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ ingest.Recorder = (*Metrics)(nil)
