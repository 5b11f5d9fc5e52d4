package memory

import (
	"strconv"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

var (
	instances       = gocache.New(gocache.NoExpiration, 0)
	instancesMutex  sync.Mutex
	defaultInstance *MemoryCache
)

// GetInstance returns the process-wide MemoryCache named cacheKey.
// maxCount and options are applied only when the instance is created.
func GetInstance(cacheKey string, maxCount int, options ...Option) (*MemoryCache, error) {
	if instance, ok := instances.Get(cacheKey); ok {
		return instance.(*MemoryCache), nil
	}

	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	if instance, ok := instances.Get(cacheKey); ok {
		return instance.(*MemoryCache), nil
	}

	cache, err := NewMemoryCache(cacheKey, maxCount, options...)
	if err != nil {
		return nil, err
	}

	instances.Set(cacheKey, cache, gocache.NoExpiration)
	return cache, nil
}

// GetInstanceByCount returns the process-wide MemoryCache keyed by its entry limit
func GetInstanceByCount(maxCount int) (*MemoryCache, error) {
	return GetInstance(strconv.Itoa(maxCount), maxCount)
}

// SetDefaultInstance makes cache the one returned by GetDefaultInstance, nil restores the built-in default
func SetDefaultInstance(cache *MemoryCache) {
	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	defaultInstance = cache
}

// GetDefaultInstance returns the MemoryCache set by SetDefaultInstance,
// or the process-wide MemoryCache with DefaultMaxCount entries
func GetDefaultInstance() (*MemoryCache, error) {
	instancesMutex.Lock()
	cache := defaultInstance
	instancesMutex.Unlock()

	if cache != nil {
		return cache, nil
	}

	return GetInstanceByCount(DefaultMaxCount)
}
