// Package metrics provides the centralized Prometheus metrics registry for
// the storefront client. All metrics are defined in their respective
// packages (client, cache, cart) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the storefront client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - storefront_cache_misses_total (Counter): Cache misses
//   - storefront_cache_errors_total{operation} (Counter): Cache operation errors
//   - storefront_inflight_shared_total (Counter): Requests that joined an in-flight call
//     instead of going to the network
//
// Request Metrics (pkg/client):
//   - storefront_requests_total{endpoint, status} (Counter): Total requests by endpoint
//     and HTTP status
//   - storefront_request_duration_seconds{endpoint} (Histogram): Request duration
//   - storefront_requests_in_flight (Gauge): Requests currently on the wire
//   - storefront_errors_total{class} (Counter): Errors by class (auth, client, server, network)
//   - storefront_forced_logouts_total (Counter): Sessions terminated after a 401
//
// Retry Metrics (pkg/client):
//   - storefront_retries_total (Counter): Retry attempts
//   - storefront_retry_backoff_seconds (Histogram): Backoff duration per retry
//   - storefront_retry_exhausted_total (Counter): Requests that exhausted max retries
//
// Cart Metrics (pkg/cart):
//   - storefront_cart_mutations_total{op, outcome} (Counter): Cart mutations by
//     operation (add, remove, update, clear, restore) and outcome (ok, rolled_back)
//   - storefront_cart_debounce_flushes_total (Counter): Debounced quantity updates
//     flushed to the server
//   - storefront_cart_debounce_superseded_total (Counter): Queued quantity updates
//     superseded or cancelled before flush
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(storefront_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(storefront_request_duration_seconds_bucket[5m]))
//
//   # Cart Rollback Rate
//   sum(rate(storefront_cart_mutations_total{outcome="rolled_back"}[5m])) /
//   sum(rate(storefront_cart_mutations_total[5m]))
