package disk

import "sync/atomic"

// DiskCacheMetrics counts disk cache operations
type DiskCacheMetrics struct {
	puts             atomic.Uint64
	putFailures      atomic.Uint64
	hits             atomic.Uint64
	misses           atomic.Uint64
	expired          atomic.Uint64
	removes          atomic.Uint64
	removeFailures   atomic.Uint64
	evictions        atomic.Uint64
	evictionFailures atomic.Uint64
	clears           atomic.Uint64
}

// DiskCacheMetricsSnapshot is a point-in-time copy of DiskCacheMetrics
type DiskCacheMetricsSnapshot struct {
	Puts             uint64
	PutFailures      uint64
	Hits             uint64
	Misses           uint64
	Expired          uint64
	Removes          uint64
	RemoveFailures   uint64
	Evictions        uint64
	EvictionFailures uint64
	Clears           uint64
}

// NewDiskCacheMetrics creates a new DiskCacheMetrics
func NewDiskCacheMetrics() *DiskCacheMetrics {
	return &DiskCacheMetrics{}
}

// Snapshot returns current counter values
func (metrics *DiskCacheMetrics) Snapshot() DiskCacheMetricsSnapshot {
	return DiskCacheMetricsSnapshot{
		Puts:             metrics.puts.Load(),
		PutFailures:      metrics.putFailures.Load(),
		Hits:             metrics.hits.Load(),
		Misses:           metrics.misses.Load(),
		Expired:          metrics.expired.Load(),
		Removes:          metrics.removes.Load(),
		RemoveFailures:   metrics.removeFailures.Load(),
		Evictions:        metrics.evictions.Load(),
		EvictionFailures: metrics.evictionFailures.Load(),
		Clears:           metrics.clears.Load(),
	}
}

func (metrics *DiskCacheMetrics) IncreaseCounterForPut()             { metrics.puts.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForPutFailure()      { metrics.putFailures.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForHit()             { metrics.hits.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForMiss()            { metrics.misses.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForExpired()         { metrics.expired.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForRemove()          { metrics.removes.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForRemoveFailure()   { metrics.removeFailures.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForEviction()        { metrics.evictions.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForEvictionFailure() { metrics.evictionFailures.Add(1) }
func (metrics *DiskCacheMetrics) IncreaseCounterForClear()           { metrics.clears.Add(1) }
