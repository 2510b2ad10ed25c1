package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "propmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "propmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Clustering metrics
	IndexBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "cluster",
		Name:      "index_builds_total",
		Help:      "Total cluster index builds",
	})

	IndexBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "propmap",
		Subsystem: "cluster",
		Name:      "index_build_duration_seconds",
		Help:      "Duration of cluster index construction",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	IndexedPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "propmap",
		Subsystem: "cluster",
		Name:      "indexed_points",
		Help:      "Number of points per built index",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
	})

	SkippedPoints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "cluster",
		Name:      "skipped_points_total",
		Help:      "Listings dropped from an index for missing coordinates",
	})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "propmap",
		Subsystem: "cluster",
		Name:      "query_duration_seconds",
		Help:      "Duration of cluster lookups",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"operation"})

	// Sync metrics
	URLWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "sync",
		Name:      "url_writes_total",
		Help:      "Address bar replacements issued, by trigger",
	}, []string{"trigger"})

	URLWritesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "sync",
		Name:      "url_writes_skipped_total",
		Help:      "Address bar writes skipped because the URL was unchanged",
	}, []string{"trigger"})

	EchoesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "sync",
		Name:      "echoes_suppressed_total",
		Help:      "Navigation events ignored as echoes of our own writes",
	})

	BoundsFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "sync",
		Name:      "bounds_fallbacks_total",
		Help:      "Bounds computed by approximation instead of the map engine",
	}, []string{"reason"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propmap",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Current number of map sessions over WebSocket",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	ListingsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "propmap",
		Subsystem: "events",
		Name:      "listings_changed_total",
		Help:      "listings.changed events received",
	})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "propmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// Route pattern, not the raw path, to keep cardinality bounded.
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// Structural match keeps pgxpool out of this package.
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
