package commons

import "math"

const (
	CacheDirNameDefault    string = "cacheUtils"
	CacheSizeMaxDefault    int64  = math.MaxInt64
	CacheCountMaxDefault   int    = math.MaxInt32
	MemoryCountMaxDefault  int    = 256
	MonitorIntervalDefault int    = 10 // seconds

	ProfileServicePortDefault     int = 12021
	PrometheusExporterPortDefault int = 12022
)
