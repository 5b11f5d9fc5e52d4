// Package memory provides a count-bounded in-process LRU cache whose entries may expire.
package memory

import (
	"fmt"
	"time"

	"github.com/cyverse/cachekit/commons"
	lrucache "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// DefaultMaxCount is the entry limit of the default instance
	DefaultMaxCount int = commons.MemoryCountMaxDefault

	noDueTime int64 = -1
)

type cacheValue struct {
	dueTime int64 // unix millis, noDueTime = never
	value   interface{}
}

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithClock sets the clock used for expiration
func WithClock(now func() time.Time) Option {
	return func(cache *MemoryCache) {
		cache.now = now
	}
}

// MemoryCache keeps up to maxCount values, evicting the least recently used
type MemoryCache struct {
	cacheKey string
	maxCount int
	cache    *lrucache.Cache
	now      func() time.Time
}

// NewMemoryCache creates a new MemoryCache
func NewMemoryCache(cacheKey string, maxCount int, options ...Option) (*MemoryCache, error) {
	lruCache, err := lrucache.New(maxCount)
	if err != nil {
		return nil, xerrors.Errorf("failed to create memory cache with max count %d: %w", maxCount, err)
	}

	cache := &MemoryCache{
		cacheKey: cacheKey,
		maxCount: maxCount,
		cache:    lruCache,
		now:      time.Now,
	}

	for _, option := range options {
		option(cache)
	}

	return cache, nil
}

// GetMaxCount returns the entry limit
func (cache *MemoryCache) GetMaxCount() int {
	return cache.maxCount
}

// Put stores value for saveTime seconds (negative to keep it until evicted). A nil value is ignored.
func (cache *MemoryCache) Put(key string, value interface{}, saveTime int) {
	if value == nil {
		return
	}

	dueTime := noDueTime
	if saveTime >= 0 {
		dueTime = cache.now().UnixMilli() + int64(saveTime)*1000
	}

	cache.cache.Add(key, cacheValue{
		dueTime: dueTime,
		value:   value,
	})
}

// Get returns the value for key. Expired values are dropped.
func (cache *MemoryCache) Get(key string) (interface{}, bool) {
	logger := log.WithFields(log.Fields{
		"package":  "memory",
		"struct":   "MemoryCache",
		"function": "Get",
	})

	entry, ok := cache.cache.Get(key)
	if !ok {
		return nil, false
	}

	cached := entry.(cacheValue)
	if cached.dueTime == noDueTime || cached.dueTime >= cache.now().UnixMilli() {
		return cached.value, true
	}

	logger.Debugf("Memory cache for key %s is expired", key)
	cache.cache.Remove(key)
	return nil, false
}

// Remove drops key and returns the value it held, or nil
func (cache *MemoryCache) Remove(key string) interface{} {
	entry, ok := cache.cache.Peek(key)
	if !ok {
		return nil
	}

	cache.cache.Remove(key)
	return entry.(cacheValue).value
}

// Clear drops all values
func (cache *MemoryCache) Clear() {
	cache.cache.Purge()
}

// GetCacheCount returns the number of stored values, including expired ones not yet dropped
func (cache *MemoryCache) GetCacheCount() int {
	return cache.cache.Len()
}

func (cache *MemoryCache) String() string {
	return fmt.Sprintf("%s@%p", cache.cacheKey, cache)
}
