package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_operations_total",
			Help:      "Total number of order workflow operations",
		},
		[]string{"operation", "status"},
	)

	stockDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_drift_total",
			Help:      "Order lines that referenced a product missing from the catalog",
		},
	)

	stockRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_restored_units_total",
			Help:      "Units returned to stock by cancellations and returns",
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery outcomes",
		},
		[]string{"outcome"},
	)
)

// RecordOrderOperation counts one workflow call.
func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordStockDrift() {
	stockDrift.Inc()
}

func RecordStockRestored(units int) {
	if units > 0 {
		stockRestored.Add(float64(units))
	}
}

// RecordNotification counts a delivery outcome (sent, retried, interrupted,
// dead_letter, dropped).
func RecordNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
