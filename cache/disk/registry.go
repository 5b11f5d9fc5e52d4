package disk

import (
	"path/filepath"
	"sync"

	"github.com/cyverse/cachekit/commons"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/xerrors"
)

var (
	instances       = gocache.New(gocache.NoExpiration, 0)
	instancesMutex  sync.Mutex
	defaultInstance *DiskCache
)

// GetInstance returns the process-wide DiskCache for (rootPath, maxSize, maxCount).
// Options are applied only when the instance is created.
func GetInstance(rootPath string, maxSize int64, maxCount int, options ...Option) (*DiskCache, error) {
	absRootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to get absolute path of %q: %w", rootPath, err)
	}

	instanceKey := makeInstanceKey(absRootPath, maxSize, maxCount)

	if instance, ok := instances.Get(instanceKey); ok {
		return instance.(*DiskCache), nil
	}

	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	if instance, ok := instances.Get(instanceKey); ok {
		return instance.(*DiskCache), nil
	}

	cache := NewDiskCache(absRootPath, maxSize, maxCount, options...)
	instances.Set(instanceKey, cache, gocache.NoExpiration)
	return cache, nil
}

// GetInstanceByName returns the process-wide DiskCache for a named directory under the per-user cache directory.
// An empty name selects the default directory.
func GetInstanceByName(name string, maxSize int64, maxCount int, options ...Option) (*DiskCache, error) {
	if len(name) == 0 {
		name = commons.CacheDirNameDefault
	}

	return GetInstance(filepath.Join(commons.GetDefaultCacheBasePath(), name), maxSize, maxCount, options...)
}

// SetDefaultInstance makes cache the one returned by GetDefaultInstance.
// A nil cache restores the unbounded DiskCache in the default directory.
func SetDefaultInstance(cache *DiskCache) {
	instancesMutex.Lock()
	defer instancesMutex.Unlock()

	defaultInstance = cache
}

// GetDefaultInstance returns the DiskCache set by SetDefaultInstance,
// or the process-wide unbounded DiskCache in the default directory
func GetDefaultInstance() (*DiskCache, error) {
	instancesMutex.Lock()
	cache := defaultInstance
	instancesMutex.Unlock()

	if cache != nil {
		return cache, nil
	}

	return GetInstanceByName("", DefaultMaxSize, DefaultMaxCount)
}
