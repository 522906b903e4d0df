package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/provenance/internal/provenance/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	provRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	provRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provenance_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	provProductsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_products_created_total",
		Help: "Total products created by category.",
	}, []string{"category"})

	provCheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_checkpoints_committed_total",
		Help: "Total checkpoints committed by stage.",
	}, []string{"stage"})

	provRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_rejections_total",
		Help: "Total rejected ledger operations by operation and error kind.",
	}, []string{"operation", "kind"})

	provQuarantinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provenance_products_quarantined_total",
		Help: "Total products marked read-only after a failed chain verification.",
	})

	provFindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_suspicious_findings_total",
		Help: "Total suspicious-activity findings by reason and severity.",
	}, []string{"reason", "severity"})

	provWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_webhook_deliveries_total",
		Help: "Total alert webhook deliveries by success status.",
	}, []string{"status"})
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
			path = "unmatched"
		}

		provRequestsTotal.WithLabelValues(method, path, status).Inc()
		provRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// LedgerMetrics implements service.MetricsRecorder with Prometheus counters.
type LedgerMetrics struct{}

// ProductCreated implements service.MetricsRecorder.
func (LedgerMetrics) ProductCreated(category model.Category) {
	provProductsCreatedTotal.WithLabelValues(string(category)).Inc()
}

// CheckpointCommitted implements service.MetricsRecorder.
func (LedgerMetrics) CheckpointCommitted(stage model.Stage) {
	provCheckpointsTotal.WithLabelValues(string(stage)).Inc()
}

// OperationRejected implements service.MetricsRecorder.
func (LedgerMetrics) OperationRejected(operation, kind string) {
	provRejectionsTotal.WithLabelValues(operation, kind).Inc()
}

// ProductQuarantined implements service.MetricsRecorder.
func (LedgerMetrics) ProductQuarantined() {
	provQuarantinedTotal.Inc()
}

// RecordFinding records a detector finding.
func RecordFinding(reason string, severity model.Severity) {
	provFindingsTotal.WithLabelValues(reason, string(severity)).Inc()
}

// RecordWebhookDelivery records an alert webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		provWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		provWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
