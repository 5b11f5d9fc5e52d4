package cache

import (
	"fmt"
	"image"
	"reflect"
	"sync"
	"time"

	"github.com/cyverse/cachekit/cache/disk"
	"github.com/cyverse/cachekit/cache/memory"
	"github.com/cyverse/cachekit/cache/ttl"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
)

var (
	instances       = gocache.New(gocache.NoExpiration, 0)
	instancesMutex  sync.Mutex
	defaultInstance *DoubleCache
)

// Option configures a DoubleCache
type Option func(*DoubleCache)

// WithClock sets the clock used to compute the memory lifetime of values read from disk
func WithClock(now func() time.Time) Option {
	return func(cache *DoubleCache) {
		cache.now = now
	}
}

// DoubleCache reads from memory first and falls back to disk.
// Values found only on disk are copied into memory for the rest of their lifetime.
type DoubleCache struct {
	memoryCache *memory.MemoryCache
	diskCache   *disk.DiskCache
	now         func() time.Time
}

// NewDoubleCache creates a new DoubleCache.
// Use GetInstance to share one DoubleCache per tier pair within the process.
func NewDoubleCache(memoryCache *memory.MemoryCache, diskCache *disk.DiskCache, options ...Option) *DoubleCache {
	cache := &DoubleCache{
		memoryCache: memoryCache,
		diskCache:   diskCache,
		now:         time.Now,
	}

	for _, option := range options {
		option(cache)
	}

	return cache
}

// GetInstance returns the process-wide DoubleCache for the tier pair
func GetInstance(memoryCache *memory.MemoryCache, diskCache *disk.DiskCache, options ...Option) *DoubleCache {
	cacheKey := fmt.Sprintf("%s_%s", diskCache.String(), memoryCache.String())

	if instance, ok := instances.Get(cacheKey); ok {
		return instance.(*DoubleCache)
	}

	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	if instance, ok := instances.Get(cacheKey); ok {
		return instance.(*DoubleCache)
	}

	cache := NewDoubleCache(memoryCache, diskCache, options...)
	instances.Set(cacheKey, cache, gocache.NoExpiration)
	return cache
}

// SetDefaultInstance makes cache the one returned by GetDefaultInstance, nil restores the built-in default
func SetDefaultInstance(cache *DoubleCache) {
	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	defaultInstance = cache
}

// GetDefaultInstance returns the DoubleCache set by SetDefaultInstance,
// or the DoubleCache over the default memory and disk caches
func GetDefaultInstance() (*DoubleCache, error) {
	instancesMutex.Lock()
	cache := defaultInstance
	instancesMutex.Unlock()

	if cache != nil {
		return cache, nil
	}

	memoryCache, err := memory.GetDefaultInstance()
	if err != nil {
		return nil, err
	}

	diskCache, err := disk.GetDefaultInstance()
	if err != nil {
		return nil, err
	}

	return GetInstance(memoryCache, diskCache), nil
}

// GetMemoryCache returns the memory tier
func (cache *DoubleCache) GetMemoryCache() *memory.MemoryCache {
	return cache.memoryCache
}

// GetDiskCache returns the disk tier
func (cache *DoubleCache) GetDiskCache() *disk.DiskCache {
	return cache.diskCache
}

// GetDiskCacheSize returns the total size of disk cache files in bytes
func (cache *DoubleCache) GetDiskCacheSize() int64 {
	return cache.diskCache.GetCacheSize()
}

// GetDiskCacheCount returns the number of disk cache files
func (cache *DoubleCache) GetDiskCacheCount() int {
	return cache.diskCache.GetCacheCount()
}

// GetMemoryCacheCount returns the number of values in memory
func (cache *DoubleCache) GetMemoryCacheCount() int {
	return cache.memoryCache.GetCacheCount()
}

// remainingSaveTime returns how long a value read from disk may stay in memory
func (cache *DoubleCache) remainingSaveTime(typeTag string, key string) int {
	info, ok := cache.diskCache.Inspect(typeTag, key)
	if !ok || !info.Expires {
		return ttl.NoExpiration
	}

	remaining := int(info.Deadline.Sub(cache.now()) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (cache *DoubleCache) promote(typeTag string, key string, value interface{}) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "DoubleCache",
		"function": "promote",
	})

	saveTime := cache.remainingSaveTime(typeTag, key)
	cache.memoryCache.Put(key, value, saveTime)

	logger.Debugf("Promoted %s%s to memory for %d seconds", typeTag, key, saveTime)
}

// PutBytes stores bytes in both tiers
func (cache *DoubleCache) PutBytes(key string, value []byte, saveTime int) error {
	cache.memoryCache.Put(key, value, saveTime)
	return cache.diskCache.PutBytes(key, value, saveTime)
}

// GetBytes returns bytes from memory or disk, or defaultValue
func (cache *DoubleCache) GetBytes(key string, defaultValue []byte) []byte {
	if value, ok := cache.memoryCache.Get(key); ok {
		if data, ok := value.([]byte); ok && data != nil {
			return data
		}
	}

	data, ok := cache.diskCache.Lookup(disk.TypeBytes, key)
	if ok {
		cache.promote(disk.TypeBytes, key, data)
		return data
	}
	return defaultValue
}

// PutString stores a string in both tiers
func (cache *DoubleCache) PutString(key string, value string, saveTime int) error {
	cache.memoryCache.Put(key, value, saveTime)
	return cache.diskCache.PutString(key, value, saveTime)
}

// GetString returns a string from memory or disk, or defaultValue
func (cache *DoubleCache) GetString(key string, defaultValue string) string {
	if value, ok := cache.memoryCache.Get(key); ok {
		if str, ok := value.(string); ok {
			return str
		}
	}

	data, ok := cache.diskCache.Lookup(disk.TypeString, key)
	if ok {
		str := string(data)
		cache.promote(disk.TypeString, key, str)
		return str
	}
	return defaultValue
}

// PutJSONObject stores a JSON object in both tiers
func (cache *DoubleCache) PutJSONObject(key string, value map[string]interface{}, saveTime int) error {
	cache.memoryCache.Put(key, value, saveTime)
	return cache.diskCache.PutJSONObject(key, value, saveTime)
}

// GetJSONObject returns a JSON object from memory or disk, or defaultValue
func (cache *DoubleCache) GetJSONObject(key string, defaultValue map[string]interface{}) map[string]interface{} {
	if value, ok := cache.memoryCache.Get(key); ok {
		if object, ok := value.(map[string]interface{}); ok && object != nil {
			return object
		}
	}

	object := cache.diskCache.GetJSONObject(key, nil)
	if object != nil {
		cache.promote(disk.TypeJSONObject, key, object)
		return object
	}
	return defaultValue
}

// PutJSONArray stores a JSON array in both tiers
func (cache *DoubleCache) PutJSONArray(key string, value []interface{}, saveTime int) error {
	cache.memoryCache.Put(key, value, saveTime)
	return cache.diskCache.PutJSONArray(key, value, saveTime)
}

// GetJSONArray returns a JSON array from memory or disk, or defaultValue
func (cache *DoubleCache) GetJSONArray(key string, defaultValue []interface{}) []interface{} {
	if value, ok := cache.memoryCache.Get(key); ok {
		if array, ok := value.([]interface{}); ok && array != nil {
			return array
		}
	}

	array := cache.diskCache.GetJSONArray(key, nil)
	if array != nil {
		cache.promote(disk.TypeJSONArray, key, array)
		return array
	}
	return defaultValue
}

// PutBitmap stores an image in both tiers
func (cache *DoubleCache) PutBitmap(key string, value image.Image, saveTime int) error {
	if value != nil {
		cache.memoryCache.Put(key, value, saveTime)
	}
	return cache.diskCache.PutBitmap(key, value, saveTime)
}

// GetBitmap returns an image from memory or disk, or defaultValue
func (cache *DoubleCache) GetBitmap(key string, defaultValue image.Image) image.Image {
	if value, ok := cache.memoryCache.Get(key); ok {
		if img, ok := value.(image.Image); ok {
			return img
		}
	}

	img := cache.diskCache.GetBitmap(key, nil)
	if img != nil {
		cache.promote(disk.TypeBitmap, key, img)
		return img
	}
	return defaultValue
}

// PutDrawable stores an image under the drawable type in both tiers
func (cache *DoubleCache) PutDrawable(key string, value image.Image, saveTime int) error {
	if value != nil {
		cache.memoryCache.Put(key, value, saveTime)
	}
	return cache.diskCache.PutDrawable(key, value, saveTime)
}

// GetDrawable returns an image stored under the drawable type from memory or disk, or defaultValue
func (cache *DoubleCache) GetDrawable(key string, defaultValue image.Image) image.Image {
	if value, ok := cache.memoryCache.Get(key); ok {
		if img, ok := value.(image.Image); ok {
			return img
		}
	}

	img := cache.diskCache.GetDrawable(key, nil)
	if img != nil {
		cache.promote(disk.TypeDrawable, key, img)
		return img
	}
	return defaultValue
}

// PutParcelable stores a protobuf message in both tiers. Memory keeps a copy.
func (cache *DoubleCache) PutParcelable(key string, value proto.Message, saveTime int) error {
	if value != nil {
		cache.memoryCache.Put(key, proto.Clone(value), saveTime)
	}
	return cache.diskCache.PutParcelable(key, value, saveTime)
}

// GetParcelable fills value from memory or disk.
// A message in memory is used only if it has the same type as value.
func (cache *DoubleCache) GetParcelable(key string, value proto.Message) bool {
	if cached, ok := cache.memoryCache.Get(key); ok {
		if message, ok := cached.(proto.Message); ok && sameMessageType(message, value) {
			proto.Reset(value)
			proto.Merge(value, message)
			return true
		}
	}

	if !cache.diskCache.GetParcelable(key, value) {
		return false
	}

	cache.promote(disk.TypeParcelable, key, proto.Clone(value))
	return true
}

func sameMessageType(a proto.Message, b proto.Message) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ProtoReflect().Descriptor().FullName() == b.ProtoReflect().Descriptor().FullName()
}

// PutSerializable stores an arbitrary value in both tiers
func (cache *DoubleCache) PutSerializable(key string, value interface{}, saveTime int) error {
	cache.memoryCache.Put(key, value, saveTime)
	return cache.diskCache.PutSerializable(key, value, saveTime)
}

// GetSerializable fills the pointer value from memory or disk.
// A value in memory is used only if it is assignable to what value points to.
func (cache *DoubleCache) GetSerializable(key string, value interface{}) bool {
	target := reflect.ValueOf(value)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return false
	}

	if cached, ok := cache.memoryCache.Get(key); ok {
		cachedValue := reflect.ValueOf(cached)
		if cachedValue.Type().AssignableTo(target.Elem().Type()) {
			target.Elem().Set(cachedValue)
			return true
		}
	}

	if !cache.diskCache.GetSerializable(key, value) {
		return false
	}

	cache.promote(disk.TypeSerializable, key, target.Elem().Interface())
	return true
}

// Remove deletes key from memory and from every type on disk
func (cache *DoubleCache) Remove(key string) bool {
	cache.memoryCache.Remove(key)
	return cache.diskCache.Remove(key)
}

// Clear deletes everything from both tiers
func (cache *DoubleCache) Clear() bool {
	cache.memoryCache.Clear()
	return cache.diskCache.Clear()
}

func (cache *DoubleCache) String() string {
	return fmt.Sprintf("%s_%s@%p", cache.diskCache.String(), cache.memoryCache.String(), cache)
}
