// Package metrics exposes Prometheus instruments for destructive and bulk work.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// bulkItemsTotal counts bulk items by operation and outcome (ok, failed).
	bulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptkeeper_bulk_items_total",
			Help: "Total number of prompts processed by bulk operations",
		},
		[]string{"operation", "status"},
	)

	bulkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptkeeper_bulk_duration_seconds",
			Help:    "Duration of bulk operations in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	deletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptkeeper_cascade_deletions_total",
			Help: "Total number of cascade deletions by outcome",
		},
		[]string{"status"},
	)

	restoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptkeeper_restores_total",
			Help: "Total number of prompt restores by outcome",
		},
		[]string{"status"},
	)

	usageFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptkeeper_usage_events_flushed_total",
			Help: "Total number of usage events written by the tracker",
		},
		[]string{"status"},
	)

	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptkeeper_webhook_deliveries_total",
			Help: "Total number of webhook deliveries by outcome (delivered, failed, dropped)",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(bulkItemsTotal)
	prometheus.MustRegister(bulkDuration)
	prometheus.MustRegister(deletionsTotal)
	prometheus.MustRegister(restoresTotal)
	prometheus.MustRegister(usageFlushedTotal)
	prometheus.MustRegister(webhookDeliveriesTotal)
}

func RecordBulk(operation string, ok, failed int, seconds float64) {
	bulkItemsTotal.WithLabelValues(operation, "ok").Add(float64(ok))
	bulkItemsTotal.WithLabelValues(operation, "failed").Add(float64(failed))
	bulkDuration.WithLabelValues(operation).Observe(seconds)
}

func RecordDeletion(status string) {
	deletionsTotal.WithLabelValues(status).Inc()
}

func RecordRestore(status string) {
	restoresTotal.WithLabelValues(status).Inc()
}

func RecordUsageFlush(status string, n int) {
	usageFlushedTotal.WithLabelValues(status).Add(float64(n))
}

func RecordWebhookDelivery(status string) {
	webhookDeliveriesTotal.WithLabelValues(status).Inc()
}
