package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyverse/cachekit/commons"
	"github.com/cyverse/cachekit/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// CachePrefix is the file name prefix of every managed cache file
	CachePrefix string = "cdu_"

	DefaultMaxSize  int64 = commons.CacheSizeMaxDefault
	DefaultMaxCount int   = commons.CacheCountMaxDefault

	typeTagLength int = 3
)

// usage is the recency of a tracked file, sequence breaks ties between equal timestamps
type usage struct {
	usedAt   int64
	sequence uint64
}

func (u usage) before(other usage) bool {
	if u.usedAt != other.usedAt {
		return u.usedAt < other.usedAt
	}
	return u.sequence < other.sequence
}

// DiskCacheManager tracks size, count and recency of cache files in one directory
type DiskCacheManager struct {
	rootPath   string
	sizeLimit  int64
	countLimit int

	currentSize  atomic.Int64
	currentCount atomic.Int64

	usages        map[string]usage // key = file path
	usageSequence uint64
	pending       map[string]int // slots being rewritten, already subtracted from the counters
	usagesMutex   sync.Mutex

	// serializes deletions so a file is never subtracted from the counters twice
	removeMutex sync.Mutex

	initDone chan struct{}
	now      func() time.Time
	metrics  *DiskCacheMetrics
}

// NewDiskCacheManager creates a new DiskCacheManager for an existing directory.
// Files already in the directory are counted by a background scan; every method waits for it.
func NewDiskCacheManager(rootPath string, sizeLimit int64, countLimit int, now func() time.Time, metrics *DiskCacheMetrics) *DiskCacheManager {
	if now == nil {
		now = time.Now
	}

	if metrics == nil {
		metrics = NewDiskCacheMetrics()
	}

	manager := &DiskCacheManager{
		rootPath:   rootPath,
		sizeLimit:  sizeLimit,
		countLimit: countLimit,
		usages:     map[string]usage{},
		pending:    map[string]int{},
		initDone:   make(chan struct{}),
		now:        now,
		metrics:    metrics,
	}

	go manager.scan()

	return manager
}

func (manager *DiskCacheManager) scan() {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCacheManager",
		"function": "scan",
	})

	defer close(manager.initDone)

	entries, err := os.ReadDir(manager.rootPath)
	if err != nil {
		logger.WithError(err).Errorf("failed to list cache directory %s", manager.rootPath)
		return
	}

	var size int64
	var count int64

	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), CachePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed while listing
			continue
		}

		size += info.Size()
		count++

		manager.usageSequence++
		manager.usages[filepath.Join(manager.rootPath, entry.Name())] = usage{
			usedAt:   info.ModTime().UnixNano(),
			sequence: manager.usageSequence,
		}
	}

	manager.currentSize.Add(size)
	manager.currentCount.Add(count)

	logger.Debugf("Found %d cache files (%d bytes) in %s", count, size, manager.rootPath)
}

func (manager *DiskCacheManager) waitForInit() {
	<-manager.initDone
}

// GetRootPath returns the cache directory
func (manager *DiskCacheManager) GetRootPath() string {
	return manager.rootPath
}

// GetSizeLimit returns the max total size of cache files in bytes
func (manager *DiskCacheManager) GetSizeLimit() int64 {
	return manager.sizeLimit
}

// GetCountLimit returns the max number of cache files
func (manager *DiskCacheManager) GetCountLimit() int {
	return manager.countLimit
}

// GetCacheSize returns the total size of cache files in bytes
func (manager *DiskCacheManager) GetCacheSize() int64 {
	manager.waitForInit()
	return manager.currentSize.Load()
}

// GetCacheCount returns the number of cache files
func (manager *DiskCacheManager) GetCacheCount() int {
	manager.waitForInit()
	return int(manager.currentCount.Load())
}

// GetFilePath returns the cache file path for a namespaced key (type tag + logical key)
func (manager *DiskCacheManager) GetFilePath(key string) string {
	return filepath.Join(manager.rootPath, makeCacheFileName(key))
}

func makeCacheFileName(key string) string {
	if len(key) < typeTagLength {
		return CachePrefix + key + strconv.Itoa(int(utils.JavaStringHash("")))
	}
	return CachePrefix + key[:typeTagLength] + strconv.Itoa(int(utils.JavaStringHash(key[typeTagLength:])))
}

// PrepareSlot returns the file path for key.
// If the file exists, its size and count are subtracted because the caller is about to overwrite it.
// The slot is not an eviction candidate until Commit or RollbackSlot is called.
func (manager *DiskCacheManager) PrepareSlot(key string) string {
	manager.waitForInit()

	path := manager.GetFilePath(key)

	manager.removeMutex.Lock()
	defer manager.removeMutex.Unlock()

	manager.usagesMutex.Lock()
	manager.pending[path]++
	delete(manager.usages, path)
	manager.usagesMutex.Unlock()

	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() {
		manager.currentCount.Add(-1)
		manager.currentSize.Add(-info.Size())
	}

	return path
}

// RollbackSlot re-adds the file at path to the counters after a failed overwrite left it in place
func (manager *DiskCacheManager) RollbackSlot(path string) {
	manager.waitForInit()

	manager.removeMutex.Lock()
	defer manager.removeMutex.Unlock()

	manager.release(path)

	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() {
		manager.currentCount.Add(1)
		manager.currentSize.Add(info.Size())

		manager.usagesMutex.Lock()
		if _, ok := manager.usages[path]; !ok {
			manager.usageSequence++
			manager.usages[path] = usage{
				usedAt:   info.ModTime().UnixNano(),
				sequence: manager.usageSequence,
			}
		}
		manager.usagesMutex.Unlock()
	}
}

// release ends a slot started by PrepareSlot
func (manager *DiskCacheManager) release(path string) {
	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	if manager.pending[path] <= 1 {
		delete(manager.pending, path)
		return
	}
	manager.pending[path]--
}

func (manager *DiskCacheManager) isPending(path string) bool {
	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	return manager.pending[path] > 0
}

// Commit adds the newly written file at path to the counters and evicts
// least recently used files until both size and count limits hold
func (manager *DiskCacheManager) Commit(path string) {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCacheManager",
		"function": "Commit",
	})

	manager.waitForInit()

	manager.removeMutex.Lock()
	manager.release(path)

	var size int64
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// removed before commit
			manager.untrack(path)
			manager.removeMutex.Unlock()
			return
		}
		logger.WithError(err).Errorf("failed to stat committed cache file %s", path)
	} else {
		size = info.Size()
	}

	manager.currentCount.Add(1)
	manager.currentSize.Add(size)
	manager.removeMutex.Unlock()

	failed := map[string]bool{}
	for manager.currentCount.Load() > int64(manager.countLimit) || manager.currentSize.Load() > manager.sizeLimit {
		candidate, ok := manager.findOldest(failed)
		if !ok {
			logger.Warnf("no more cache files to evict in %s, size %d, count %d", manager.rootPath, manager.currentSize.Load(), manager.currentCount.Load())
			return
		}

		freed, err := manager.evict(candidate)
		if err != nil {
			logger.WithError(err).Errorf("failed to evict cache file %s", candidate)
			manager.metrics.IncreaseCounterForEvictionFailure()
			failed[candidate] = true
			continue
		}

		logger.Debugf("Evicted cache file %s (%d bytes)", candidate, freed)
		manager.metrics.IncreaseCounterForEviction()
	}
}

// findOldest returns the least recently used tracked file that is not in skip
func (manager *DiskCacheManager) findOldest(skip map[string]bool) (string, bool) {
	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	oldestPath := ""
	var oldestUsage usage
	found := false

	for path, fileUsage := range manager.usages {
		if skip[path] || manager.pending[path] > 0 {
			continue
		}

		if !found || fileUsage.before(oldestUsage) {
			oldestPath = path
			oldestUsage = fileUsage
			found = true
		}
	}

	return oldestPath, found
}

func (manager *DiskCacheManager) isTracked(path string) bool {
	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	_, ok := manager.usages[path]
	return ok
}

func (manager *DiskCacheManager) untrack(path string) {
	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	delete(manager.usages, path)
}

// evict deletes a tracked file and subtracts it from the counters.
// A file that is no longer tracked was removed concurrently and is skipped, as is a slot being rewritten.
func (manager *DiskCacheManager) evict(path string) (int64, error) {
	manager.removeMutex.Lock()
	defer manager.removeMutex.Unlock()

	if !manager.isTracked(path) || manager.isPending(path) {
		return 0, nil
	}

	var size int64
	info, err := os.Stat(path)
	if err == nil {
		size = info.Size()
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}

	manager.currentSize.Add(-size)
	manager.currentCount.Add(-1)
	manager.untrack(path)

	return size, nil
}

// Touch marks the file at path as used now
func (manager *DiskCacheManager) Touch(path string) {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCacheManager",
		"function": "Touch",
	})

	manager.waitForInit()

	now := manager.now()
	err := os.Chtimes(path, now, now)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// removed concurrently
			return
		}
		logger.WithError(err).Warnf("failed to update modification time of %s", path)
	}

	manager.usagesMutex.Lock()
	defer manager.usagesMutex.Unlock()

	manager.usageSequence++
	manager.usages[path] = usage{
		usedAt:   now.UnixNano(),
		sequence: manager.usageSequence,
	}
}

// Lookup returns the file path for key if the file exists
func (manager *DiskCacheManager) Lookup(key string) (string, bool) {
	manager.waitForInit()

	path := manager.GetFilePath(key)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	return path, true
}

// RemoveByKey deletes the file for key.
// It returns true if the file is gone afterwards, false if the delete failed.
func (manager *DiskCacheManager) RemoveByKey(key string) bool {
	return manager.RemoveFile(manager.GetFilePath(key))
}

// RemoveFile deletes the cache file at path.
// It returns true if the file is gone afterwards, false if the delete failed.
func (manager *DiskCacheManager) RemoveFile(path string) bool {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCacheManager",
		"function": "RemoveFile",
	})

	manager.waitForInit()

	manager.removeMutex.Lock()
	defer manager.removeMutex.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			manager.untrack(path)
			return true
		}

		logger.WithError(err).Errorf("failed to stat cache file %s", path)
		manager.metrics.IncreaseCounterForRemoveFailure()
		return false
	}

	err = os.Remove(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}

		logger.WithError(err).Errorf("failed to remove cache file %s", path)
		manager.metrics.IncreaseCounterForRemoveFailure()
		return false
	}

	// a slot being rewritten was subtracted by PrepareSlot already
	if !manager.isPending(path) {
		manager.currentSize.Add(-info.Size())
		manager.currentCount.Add(-1)
	}
	manager.untrack(path)

	manager.metrics.IncreaseCounterForRemove()
	return true
}

// ListFiles returns the paths of all cache files in the directory
func (manager *DiskCacheManager) ListFiles() ([]string, error) {
	manager.waitForInit()

	entries, err := os.ReadDir(manager.rootPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to list cache directory %q: %w", manager.rootPath, err)
	}

	paths := []string{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), CachePrefix) {
			continue
		}

		paths = append(paths, filepath.Join(manager.rootPath, entry.Name()))
	}

	return paths, nil
}

// Clear deletes every cache file in the directory.
// Counters and recency are reset only if all deletions succeed.
func (manager *DiskCacheManager) Clear() bool {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCacheManager",
		"function": "Clear",
	})

	manager.waitForInit()

	entries, err := os.ReadDir(manager.rootPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}

		logger.WithError(err).Errorf("failed to list cache directory %s", manager.rootPath)
		return false
	}

	manager.metrics.IncreaseCounterForClear()

	manager.removeMutex.Lock()
	defer manager.removeMutex.Unlock()

	success := true
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), CachePrefix) {
			continue
		}

		path := filepath.Join(manager.rootPath, entry.Name())

		var size int64
		info, err := entry.Info()
		if err == nil {
			size = info.Size()
		}

		err = os.Remove(path)
		if err != nil {
			logger.WithError(err).Errorf("failed to remove cache file %s", path)
			success = false
			continue
		}

		if !manager.isPending(path) {
			manager.currentSize.Add(-size)
			manager.currentCount.Add(-1)
		}
		manager.untrack(path)
	}

	if success {
		manager.usagesMutex.Lock()
		manager.usages = map[string]usage{}
		manager.usagesMutex.Unlock()

		manager.currentSize.Store(0)
		manager.currentCount.Store(0)
	}

	return success
}
