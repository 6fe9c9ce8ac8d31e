// Package metrics registers the Prometheus collectors the item-index
// engine exposes: cache effectiveness and lookup latency for the L2P
// and P2L readers, and builder throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the engine updates.
type Collector struct {
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheEntriesTotal   *prometheus.GaugeVec

	LookupDuration  *prometheus.HistogramVec
	PrefetchedPages *prometheus.CounterVec

	BuilderPagesWritten *prometheus.CounterVec
	BuilderBytesWritten *prometheus.CounterVec
	BuilderDuration     *prometheus.HistogramVec
}

// New constructs and registers a Collector under the given namespace.
func New(namespace string) *Collector {
	return &Collector{
		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits, by cache kind.",
		}, []string{"cache"}),
		CacheMissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses, by cache kind.",
		}, []string{"cache"}),
		CacheEvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Cache evictions, by cache kind.",
		}, []string{"cache"}),
		CacheEntriesTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current entry count, by cache kind.",
		}, []string{"cache"}),
		LookupDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "lookup_duration_seconds",
			Help:      "Lookup latency, by index kind (l2p/p2l).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"index"}),
		PrefetchedPages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "prefetched_pages_total",
			Help:      "Pages fetched ahead of an explicit lookup, by index kind.",
		}, []string{"index"}),
		BuilderPagesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "pages_written_total",
			Help:      "Pages emitted into a final index file, by index kind.",
		}, []string{"index"}),
		BuilderBytesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "bytes_written_total",
			Help:      "Bytes emitted into a final index file, by index kind.",
		}, []string{"index"}),
		BuilderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "builder",
			Name:      "build_duration_seconds",
			Help:      "Time to build a final index file from its proto log, by index kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"index"}),
	}
}
