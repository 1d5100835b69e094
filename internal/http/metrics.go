package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	tokensIssuedTotal  *prometheus.CounterVec
	grantFailuresTotal *prometheus.CounterVec
)

// MetricsConfig agrupa lo necesario para exponer /metrics.
type MetricsConfig struct {
	Registry prometheus.Registerer
	// Pool opcional: si está, se registra un collector con stats del pool.
	Pool func() *pgxpool.Pool
}

// RegisterMetrics inicializa las métricas y devuelve el handler de /metrics.
func RegisterMetrics(cfg MetricsConfig) http.Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		tokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_tokens_issued_total",
			Help: "Tokens emitidos por grant type",
		}, []string{"grant_type"})

		grantFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_grant_failures_total",
			Help: "Fallos del protocolo por código de error",
		}, []string{"error"})

		registry.MustRegister(httpRequestsTotal, httpRequestDuration,
			tokensIssuedTotal, grantFailuresTotal)

		if cfg.Pool != nil {
			registry.MustRegister(&poolCollector{pool: cfg.Pool})
		}
	})

	return promhttp.Handler()
}

// ObserveRequest alimenta las métricas HTTP; lo llama el middleware de
// instrumentación del router.
func ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// CountTokenIssued registra una emisión exitosa.
func CountTokenIssued(grantType string) {
	if tokensIssuedTotal != nil {
		tokensIssuedTotal.WithLabelValues(grantType).Inc()
	}
}

// CountGrantFailure registra un error de protocolo devuelto al caller.
func CountGrantFailure(code string) {
	if grantFailuresTotal != nil {
		grantFailuresTotal.WithLabelValues(code).Inc()
	}
}

// poolCollector expone las estadísticas del pgxpool.
type poolCollector struct {
	pool func() *pgxpool.Pool
}

var (
	descAcquired = prometheus.NewDesc("pgxpool_acquired_conns", "Conexiones adquiridas", nil, nil)
	descIdle     = prometheus.NewDesc("pgxpool_idle_conns", "Conexiones idle", nil, nil)
	descTotal    = prometheus.NewDesc("pgxpool_total_conns", "Conexiones totales", nil, nil)
)

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descAcquired
	ch <- descIdle
	ch <- descTotal
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool()
	if p == nil {
		return
	}
	st := p.Stat()
	ch <- prometheus.MustNewConstMetric(descAcquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(descIdle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(descTotal, prometheus.GaugeValue, float64(st.TotalConns()))
}
