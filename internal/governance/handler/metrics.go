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
	genesisActorsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genesis_actors_total",
		Help: "Registered actors by status.",
	}, []string{"status"})

	genesisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genesis_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	genesisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genesis_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	genesisEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genesis_audit_events_total",
		Help: "Audit events appended, by bucket.",
	}, []string{"bucket"})

	genesisMutationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genesis_mutation_failures_total",
		Help: "Rejected mutations by route.",
	}, []string{"path"})

	genesisEpochsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genesis_epochs_committed_total",
		Help: "Epoch commitments sealed.",
	})

	genesisPersistenceDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genesis_persistence_degraded",
		Help: "1 while the post-audit snapshot store is failing writes.",
	})
)

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
			path = c.Request.URL.Path
		}

		genesisRequestsTotal.WithLabelValues(method, path, status).Inc()
		genesisRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordEventAppend records one appended audit event for a bucket.
func RecordEventAppend(bucket string) {
	genesisEventsTotal.WithLabelValues(bucket).Inc()
}

// RecordMutationFailure records a rejected mutation on a route.
func RecordMutationFailure(path string) {
	genesisMutationFailures.WithLabelValues(path).Inc()
}

// RecordEpochCommitted records a sealed epoch commitment.
func RecordEpochCommitted() {
	genesisEpochsCommitted.Inc()
}

// SetActorsGauge sets the actor count gauge for a given status.
func SetActorsGauge(status string, count float64) {
	genesisActorsTotal.WithLabelValues(status).Set(count)
}

// SetPersistenceDegraded reflects the sticky snapshot-failure flag.
func SetPersistenceDegraded(degraded bool) {
	if degraded {
		genesisPersistenceDegraded.Set(1)
	} else {
		genesisPersistenceDegraded.Set(0)
	}
}
