package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the request pipeline.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_requests_in_flight",
		Help: "Number of API requests currently in flight",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})

	logoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_forced_logouts_total",
		Help: "Total forced logout/redirects triggered by the pipeline",
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_retries_total",
		Help: "Total retry attempts for network errors on reads",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_retry_backoff_seconds",
		Help:    "Backoff duration for read retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_retry_exhausted_total",
		Help: "Total number of times read retry attempts were exhausted",
	})
)
