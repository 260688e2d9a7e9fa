// Package metrics provides the centralized Prometheus metrics registry for
// the popproj connector. All metrics are defined in their respective packages
// (census, cache, quota, connector) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the connector.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Quota Metrics (pkg/quota):
//   - census_quota_used (Gauge): Requests used so far in the current UTC day
//   - census_quota_blocks_total (Counter): Requests blocked because the daily budget was exhausted
//   - census_quota_throttles_total (Counter): Requests throttled near the daily budget
//
// Cache Metrics (pkg/cache):
//   - census_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - census_cache_misses_total (Counter): Cache misses
//   - census_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - census_304_responses_total (Counter): 304 Not Modified responses
//   - census_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - census_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/census):
//   - census_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - census_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - census_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/census):
//   - census_retries_total{error_class} (Counter): Retry attempts by error class
//   - census_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - census_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Sync Metrics (pkg/connector):
//   - census_sync_runs_total (Counter): Total sync runs
//   - census_sync_records_total (Counter): Records emitted across all runs
//   - census_sync_paramset_failures_total (Counter): Parameter sets skipped after errors
//   - census_sync_run_duration_seconds (Histogram): Sync run duration
//   - census_sync_last_run_timestamp_seconds (Gauge): Unix timestamp of the most recent run
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(census_cache_hits_total[5m])) /
//   (sum(rate(census_cache_hits_total[5m])) + sum(rate(census_cache_misses_total[5m])))
//
//   # Daily Quota Headroom
//   census_quota_used
//
//   # Request Error Rate
//   rate(census_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(census_request_duration_seconds_bucket[5m]))
//
//   # Skipped Parameter Sets Per Run
//   rate(census_sync_paramset_failures_total[1h]) / rate(census_sync_runs_total[1h])
