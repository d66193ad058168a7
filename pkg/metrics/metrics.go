// Package metrics provides the centralized Prometheus metrics registry.
// All metrics are defined in their respective packages (store, gateway,
// ratelimit, pagination, job) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used across the project.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - issuedeck_store_hits_total (Counter): Cache entries found and decoded
//   - issuedeck_store_misses_total (Counter): Lookups for absent or corrupt entries
//   - issuedeck_store_errors_total{operation} (Counter): Redis operation errors
//   - issuedeck_recency_pruned_total (Counter): Keys pruned from the recency list
//
// Tracker Metrics (pkg/gateway):
//   - issuedeck_tracker_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - issuedeck_tracker_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - issuedeck_tracker_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - issuedeck_tracker_retries_total{error_class} (Counter): Retry attempts by error class
//   - issuedeck_tracker_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - issuedeck_rate_limit_blocks_total (Counter): Requests blocked by the shared guard
//   - issuedeck_rate_limit_trips_total (Counter): 429 responses that tripped the guard
//
// Fetch Metrics (pkg/pagination):
//   - issuedeck_fetch_pages_total{result} (Counter): Pages fetched by result (success, error)
//   - issuedeck_fetch_duration_seconds (Histogram): Duration of full paginated fetches
//
// Job Metrics (pkg/job):
//   - issuedeck_jobs_spawned_total (Counter): Background refresh jobs spawned
//   - issuedeck_job_spawn_errors_total (Counter): Background job spawn failures
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(issuedeck_store_hits_total[5m])) /
//   (sum(rate(issuedeck_store_hits_total[5m])) + sum(rate(issuedeck_store_misses_total[5m])))
//
//   # Tracker Error Rate
//   rate(issuedeck_tracker_errors_total[5m])
//
//   # P95 Tracker Latency
//   histogram_quantile(0.95, rate(issuedeck_tracker_request_duration_seconds_bucket[5m]))
//
//   # Refresh Failure Rate
//   rate(issuedeck_fetch_pages_total{result="error"}[5m]) /
//   rate(issuedeck_fetch_pages_total[5m])
