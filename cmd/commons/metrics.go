package commons

import (
	"github.com/cyverse/cachekit/cache/disk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForPut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_put_ops_total",
		Help: "The total number of put calls",
	})
	oldCounterForPut uint64 = 0

	promCounterForPutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_put_failures_total",
		Help: "The total number of failed put calls",
	})
	oldCounterForPutFailures uint64 = 0

	promCounterForHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_hits_total",
		Help: "The total number of cache hits",
	})
	oldCounterForHit uint64 = 0

	promCounterForMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_misses_total",
		Help: "The total number of cache misses",
	})
	oldCounterForMiss uint64 = 0

	promCounterForExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_expired_total",
		Help: "The total number of expired cache files removed",
	})
	oldCounterForExpired uint64 = 0

	promCounterForRemove = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_remove_ops_total",
		Help: "The total number of removed cache files",
	})
	oldCounterForRemove uint64 = 0

	promCounterForRemoveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_remove_failures_total",
		Help: "The total number of failed removals",
	})
	oldCounterForRemoveFailures uint64 = 0

	promCounterForEviction = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_evictions_total",
		Help: "The total number of evicted cache files",
	})
	oldCounterForEviction uint64 = 0

	promCounterForEvictionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_eviction_failures_total",
		Help: "The total number of failed evictions",
	})
	oldCounterForEvictionFailures uint64 = 0

	promCounterForClear = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachekit_clear_ops_total",
		Help: "The total number of clear calls",
	})
	oldCounterForClear uint64 = 0

	promGaugeForCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachekit_cache_size_bytes",
		Help: "The total size of cache files",
	})

	promGaugeForCacheCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachekit_cache_files",
		Help: "The number of cache files",
	})
)

// UpdateMetrics pushes the counters accumulated since the last call to prometheus
func UpdateMetrics(diskCache *disk.DiskCache) {
	metrics := diskCache.GetMetrics()

	promCounterForPut.Add(float64(metrics.Puts - oldCounterForPut))
	oldCounterForPut = metrics.Puts

	promCounterForPutFailures.Add(float64(metrics.PutFailures - oldCounterForPutFailures))
	oldCounterForPutFailures = metrics.PutFailures

	promCounterForHit.Add(float64(metrics.Hits - oldCounterForHit))
	oldCounterForHit = metrics.Hits

	promCounterForMiss.Add(float64(metrics.Misses - oldCounterForMiss))
	oldCounterForMiss = metrics.Misses

	promCounterForExpired.Add(float64(metrics.Expired - oldCounterForExpired))
	oldCounterForExpired = metrics.Expired

	promCounterForRemove.Add(float64(metrics.Removes - oldCounterForRemove))
	oldCounterForRemove = metrics.Removes

	promCounterForRemoveFailures.Add(float64(metrics.RemoveFailures - oldCounterForRemoveFailures))
	oldCounterForRemoveFailures = metrics.RemoveFailures

	promCounterForEviction.Add(float64(metrics.Evictions - oldCounterForEviction))
	oldCounterForEviction = metrics.Evictions

	promCounterForEvictionFailures.Add(float64(metrics.EvictionFailures - oldCounterForEvictionFailures))
	oldCounterForEvictionFailures = metrics.EvictionFailures

	promCounterForClear.Add(float64(metrics.Clears - oldCounterForClear))
	oldCounterForClear = metrics.Clears

	promGaugeForCacheSize.Set(float64(diskCache.GetCacheSize()))
	promGaugeForCacheCount.Set(float64(diskCache.GetCacheCount()))
}
