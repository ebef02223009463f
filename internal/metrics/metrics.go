// Package metrics exposes Prometheus instrumentation for the storefront.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackendRequests counts commerce-backend calls by operation and outcome.
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_backend_requests_total",
		Help: "Commerce backend requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	// OrderCreateRetries counts retried order-creation attempts.
	OrderCreateRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_order_create_retries_total",
		Help: "Order creation attempts retried after a 502-class failure.",
	})

	// Resolutions counts payment-URL resolutions by winning source.
	// Sources: metadata, scrape, fallback, none.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_url_resolutions_total",
		Help: "Payment URL resolutions by source of the chosen URL.",
	}, []string{"source"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
