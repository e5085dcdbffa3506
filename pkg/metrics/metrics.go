// Package metrics provides the Prometheus registry used by cadseq and a
// catalogue of the metrics each package registers.
//
// Metrics are defined next to the code that records them (client, cache,
// ratelimit, harvest, convert) via promauto, so importing a package is
// enough to register its collectors with the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by cadseq.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Catalogue
//
// Transport (pkg/client):
//   - cadseq_api_requests_total{endpoint, status} (Counter)
//   - cadseq_api_request_duration_seconds{endpoint} (Histogram)
//   - cadseq_api_errors_total{class} (Counter)
//   - cadseq_api_retries_total{error_class} (Counter)
//   - cadseq_api_retry_backoff_seconds{error_class} (Histogram)
//   - cadseq_api_retry_exhausted_total{error_class} (Counter)
//
// Response cache (pkg/cache):
//   - cadseq_cache_hits_total{layer="redis"} (Counter)
//   - cadseq_cache_misses_total (Counter)
//   - cadseq_cache_size_bytes{layer="redis"} (Gauge)
//   - cadseq_304_responses_total (Counter)
//   - cadseq_conditional_requests_total (Counter)
//   - cadseq_cache_errors_total{operation} (Counter)
//
// Rate limiting (pkg/ratelimit):
//   - cadseq_rate_limit_remaining (Gauge)
//   - cadseq_rate_limit_waits_total (Counter)
//   - cadseq_rate_limit_backoffs_total (Counter)
//
// Harvest (pkg/harvest):
//   - cadseq_items_classified_total{reason} (Counter)
//   - cadseq_item_duration_seconds (Histogram)
//   - cadseq_pipeline_runs_total (Counter)
//
// Conversion (pkg/convert):
//   - cadseq_conversions_total{result} (Counter)
//   - cadseq_conversion_duration_seconds (Histogram)
//
// Example Prometheus Queries:
//
//   # Share of harvested items rejected for unsupported features
//   sum(rate(cadseq_items_classified_total{reason="unsupported_feature"}[1h]))
//     / sum(rate(cadseq_items_classified_total[1h]))
//
//   # Transport error rate
//   rate(cadseq_api_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(cadseq_api_request_duration_seconds_bucket[5m]))
