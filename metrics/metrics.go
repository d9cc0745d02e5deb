package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server. Each instance owns its
// registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers HTTP collectors, Go runtime collectors and, when stats is
// non-nil, gauges that read the database pool on every scrape.
func New(stats func() sql.DBStats) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if stats != nil {
		registerDBStats(registry, stats)
	}
	return m
}

func registerDBStats(registry *prometheus.Registry, stats func() sql.DBStats) {
	factory := promauto.With(registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "todo_db_open_connections",
		Help: "Number of established database connections",
	}, func() float64 { return float64(stats().OpenConnections) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "todo_db_in_use_connections",
		Help: "Number of database connections currently in use",
	}, func() float64 { return float64(stats().InUse) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "todo_db_idle_connections",
		Help: "Number of idle database connections",
	}, func() float64 { return float64(stats().Idle) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "todo_db_wait_count_total",
		Help: "Total number of connections waited for",
	}, func() float64 { return float64(stats().WaitCount) })
}

// ObserveRequest records one finished request. route is the registered
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
