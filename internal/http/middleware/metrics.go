// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the Prometheus collectors for HTTP traffic. The path
// label always uses the registered route template, so a burst of lookups
// against /api/events/:delivery_id stays a single series instead of one
// series per delivery id.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Latency omits the status label to keep histogram cardinality down.
	reqLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	reqInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Webhook payloads and receipt pages are small JSON bodies; the bucket
	// range runs from a bare envelope up to a full uncompressed listing.
	respBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 9), // 128B .. ~8MiB
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(reqCount, reqLatency, reqInflight, respBytes)
}

// Metrics returns a Gin middleware that instruments every request. Mount it
// before the routes and expose promhttp.Handler() on /metrics:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// When no route matched (404s, probes) the raw URL path is used instead of
// the empty template; NoRoute traffic is low enough that this does not
// threaten cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqInflight.Inc()
		defer reqInflight.Dec()

		c.Next()

		path := routePath(c)
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		reqCount.WithLabelValues(method, path, status).Inc()
		reqLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			// Size is -1 for hijacked or bodyless responses; skip those.
			respBytes.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
