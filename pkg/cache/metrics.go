package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadseq_cache_hits_total",
			Help: "Total number of API response cache hits",
		},
		[]string{"layer"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadseq_cache_misses_total",
			Help: "Total number of API response cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadseq_cache_size_bytes",
			Help: "Bytes written to the API response cache",
		},
		[]string{"layer"},
	)

	// NotModifiedResponses tracks 304 Not Modified responses served from cache
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadseq_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks requests revalidated with If-None-Match / If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cadseq_conditional_requests_total",
			Help: "Total number of conditional requests sent",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadseq_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
