package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Core lookup/hit/miss counters, labeled by subsystem
	// ("gateway" or "proxy") and the strategy applied.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"subsystem", "strategy"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of fresh cache hits",
		},
		[]string{"subsystem", "strategy"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"subsystem", "strategy"},
	)

	StaleFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_stale_fallbacks_total",
			Help: "Total number of expired entries served because the network failed",
		},
		[]string{"subsystem"},
	)

	SyntheticResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_synthetic_responses_total",
			Help: "Total number of synthetic offline responses returned by the proxy",
		},
		[]string{"strategy"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_store_errors_total",
			Help: "Total number of store errors by kind (decode, encode, quota)",
		},
		[]string{"store", "kind"},
	)

	// Get operation latency only
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache get operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subsystem"},
	)

	// Most recent policy output per schedule.
	CurrentTTL = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_current_ttl_seconds",
			Help: "TTL most recently computed by the smart TTL schedule",
		},
		[]string{"schedule"},
	)

	StoreCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_store_capacity_bytes",
			Help: "Store capacity in bytes",
		},
		[]string{"store"},
	)

	StoreEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_store_entries",
			Help: "Number of entries in the store",
		},
		[]string{"store"},
	)
)

// RecordCacheRequest records a cache lookup.
func RecordCacheRequest(subsystem, strategy string) {
	CacheRequests.WithLabelValues(subsystem, strategy).Inc()
}

// RecordCacheHit records a fresh cache hit.
func RecordCacheHit(subsystem, strategy string) {
	CacheHits.WithLabelValues(subsystem, strategy).Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss(subsystem, strategy string) {
	CacheMisses.WithLabelValues(subsystem, strategy).Inc()
}

// RecordStaleFallback records an expired entry served after a network failure.
func RecordStaleFallback(subsystem string) {
	StaleFallbacks.WithLabelValues(subsystem).Inc()
}

// RecordSyntheticResponse records a synthetic offline response.
func RecordSyntheticResponse(strategy string) {
	SyntheticResponses.WithLabelValues(strategy).Inc()
}

// RecordStoreError records a store-level error.
func RecordStoreError(store, kind string) {
	StoreErrors.WithLabelValues(store, kind).Inc()
}

// UpdateCurrentTTL publishes the TTL a schedule just computed.
func UpdateCurrentTTL(schedule string, seconds float64) {
	CurrentTTL.WithLabelValues(schedule).Set(seconds)
}

// UpdateStoreStats updates store capacity metrics.
func UpdateStoreStats(store string, capacityBytes, entries int64) {
	StoreCapacity.WithLabelValues(store).Set(float64(capacityBytes))
	StoreEntries.WithLabelValues(store).Set(float64(entries))
}

// TimeCacheGetOperation returns a timer function for measuring cache get
// operation duration.
func TimeCacheGetOperation(subsystem string) func() {
	timer := prometheus.NewTimer(CacheOperationDuration.WithLabelValues(subsystem))
	return func() {
		timer.ObserveDuration()
	}
}
