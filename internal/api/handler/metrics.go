package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	storefrontRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	storefrontRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	provenanceEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_provenance_events_recorded_total",
		Help: "Total provenance events persisted by lifecycle status.",
	}, []string{"status"})

	provenanceVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_provenance_verifications_total",
		Help: "Total provenance chain verifications by result.",
	}, []string{"result"})

	payLinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_paylinks_total",
		Help: "Total payment link operations by operation and outcome.",
	}, []string{"op", "outcome"})

	ratingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_ratings_total",
		Help: "Total ratings recorded by kind.",
	}, []string{"kind"})

	auditedProducts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_audited_products",
		Help: "Products covered by the last provenance audit, by result.",
	}, []string{"result"})
)

// unmatchedPath labels requests that matched no route, keeping label
// cardinality bounded.
const unmatchedPath = "unmatched"

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}

		storefrontRequestsTotal.WithLabelValues(method, path, status).Inc()
		storefrontRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProvenanceEvent records a persisted lifecycle event.
func RecordProvenanceEvent(status string) {
	provenanceEventsTotal.WithLabelValues(status).Inc()
}

// RecordVerification records a chain verification outcome.
func RecordVerification(verified bool) {
	provenanceVerificationsTotal.WithLabelValues(result(verified)).Inc()
}

// RecordAudit sets the product gauges from the last audit pass.
func RecordAudit(verified, unverified int) {
	auditedProducts.WithLabelValues("verified").Set(float64(verified))
	auditedProducts.WithLabelValues("unverified").Set(float64(unverified))
}

func recordPayLink(op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	payLinksTotal.WithLabelValues(op, outcome).Inc()
}

func recordRating(kind string) {
	ratingsTotal.WithLabelValues(kind).Inc()
}

func result(verified bool) string {
	if verified {
		return "verified"
	}
	return "unverified"
}
