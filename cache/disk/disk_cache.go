// Package disk provides a persistent key-value cache stored as one file per entry in a flat directory.
//
// Values are namespaced by a 3-character type tag so that the same logical key can hold one value
// per type. Each file may start with an expiration header (see package ttl). The total size and
// count of files are bounded; the least recently used files are evicted when a put exceeds a limit.
package disk

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cyverse/cachekit/cache/ttl"
	"github.com/cyverse/cachekit/commons"
	"github.com/cyverse/cachekit/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/proto"
)

// type tags
const (
	TypeBytes        string = "by_"
	TypeString       string = "st_"
	TypeJSONObject   string = "jo_"
	TypeJSONArray    string = "ja_"
	TypeBitmap       string = "bi_"
	TypeDrawable     string = "dr_"
	TypeParcelable   string = "pa_"
	TypeSerializable string = "se_"

	cacheFilePerm os.FileMode = 0600
	cacheDirPerm  os.FileMode = 0700
)

// TypeTags lists every type tag
var TypeTags = []string{
	TypeBytes,
	TypeString,
	TypeJSONObject,
	TypeJSONArray,
	TypeBitmap,
	TypeDrawable,
	TypeParcelable,
	TypeSerializable,
}

// EntryInfo describes a cache file
type EntryInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	Expires      bool
	Deadline     time.Time
}

// Option configures a DiskCache
type Option func(*DiskCache)

// WithClock sets the clock used for expiration and recency
func WithClock(now func() time.Time) Option {
	return func(cache *DiskCache) {
		cache.now = now
	}
}

// WithCodec replaces the codec used for a type tag
func WithCodec(typeTag string, codec Codec) Option {
	return func(cache *DiskCache) {
		cache.codecs[typeTag] = codec
	}
}

// DiskCache stores typed values in a cache directory
type DiskCache struct {
	cacheKey string
	rootPath string
	maxSize  int64
	maxCount int

	now      func() time.Time
	ttlCodec *ttl.Codec
	codecs   map[string]Codec
	metrics  *DiskCacheMetrics

	manager      *DiskCacheManager
	managerMutex sync.Mutex
}

// NewDiskCache creates a new DiskCache rooted at rootPath.
// Use GetInstance to share one DiskCache per directory within the process.
func NewDiskCache(rootPath string, maxSize int64, maxCount int, options ...Option) *DiskCache {
	cache := &DiskCache{
		cacheKey: makeInstanceKey(rootPath, maxSize, maxCount),
		rootPath: rootPath,
		maxSize:  maxSize,
		maxCount: maxCount,
		now:      time.Now,
		codecs: map[string]Codec{
			TypeJSONObject:   JSONCodec{},
			TypeJSONArray:    JSONCodec{},
			TypeBitmap:       ImageCodec{Format: ImageFormatPNG},
			TypeDrawable:     ImageCodec{Format: ImageFormatPNG},
			TypeParcelable:   ProtoCodec{},
			TypeSerializable: GobCodec{},
		},
		metrics: NewDiskCacheMetrics(),
	}

	for _, option := range options {
		option(cache)
	}

	cache.ttlCodec = ttl.NewCodec(cache.now)
	return cache
}

func makeInstanceKey(rootPath string, maxSize int64, maxCount int) string {
	return fmt.Sprintf("%s_%d_%d", rootPath, maxSize, maxCount)
}

// getManager returns the manager for the cache directory, recreating the directory if it disappeared.
// It returns nil if the directory cannot be created.
func (cache *DiskCache) getManager() *DiskCacheManager {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCache",
		"function": "getManager",
	})

	cache.managerMutex.Lock()
	defer cache.managerMutex.Unlock()

	info, err := os.Stat(cache.rootPath)
	if err == nil && info.IsDir() {
		if cache.manager == nil {
			cache.manager = NewDiskCacheManager(cache.rootPath, cache.maxSize, cache.maxCount, cache.now, cache.metrics)
		}
		return cache.manager
	}

	err = os.MkdirAll(cache.rootPath, cacheDirPerm)
	if err != nil {
		logger.WithError(err).Errorf("failed to create cache directory %s", cache.rootPath)
		return nil
	}

	cache.manager = NewDiskCacheManager(cache.rootPath, cache.maxSize, cache.maxCount, cache.now, cache.metrics)
	return cache.manager
}

// GetRootPath returns the cache directory
func (cache *DiskCache) GetRootPath() string {
	return cache.rootPath
}

// GetMetrics returns operation counters
func (cache *DiskCache) GetMetrics() DiskCacheMetricsSnapshot {
	return cache.metrics.Snapshot()
}

// GetSizeLimit returns the max total size of cache files in bytes
func (cache *DiskCache) GetSizeLimit() int64 {
	manager := cache.getManager()
	if manager == nil {
		return cache.maxSize
	}
	return manager.GetSizeLimit()
}

// GetCountLimit returns the max number of cache files
func (cache *DiskCache) GetCountLimit() int {
	manager := cache.getManager()
	if manager == nil {
		return cache.maxCount
	}
	return manager.GetCountLimit()
}

// GetCacheSize returns the total size of cache files in bytes
func (cache *DiskCache) GetCacheSize() int64 {
	manager := cache.getManager()
	if manager == nil {
		return 0
	}
	return manager.GetCacheSize()
}

// GetCacheCount returns the number of cache files
func (cache *DiskCache) GetCacheCount() int {
	manager := cache.getManager()
	if manager == nil {
		return 0
	}
	return manager.GetCacheCount()
}

func (cache *DiskCache) putBytes(key string, data []byte, saveTime int) error {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCache",
		"function": "putBytes",
	})

	manager := cache.getManager()
	if manager == nil {
		cache.metrics.IncreaseCounterForPutFailure()
		return commons.NewCacheDirError(cache.rootPath, nil)
	}

	if saveTime >= 0 {
		data = cache.ttlCodec.Encode(saveTime, data)
	}

	path := manager.PrepareSlot(key)
	err := utils.WriteFileAtomic(path, data, cacheFilePerm)
	if err != nil {
		manager.RollbackSlot(path)
		cache.metrics.IncreaseCounterForPutFailure()
		logger.WithError(err).Errorf("failed to write cache file for key %s", key)
		return xerrors.Errorf("failed to put cache for key %q: %w", key, err)
	}

	manager.Touch(path)
	manager.Commit(path)

	cache.metrics.IncreaseCounterForPut()
	logger.Debugf("Put cache for key %s to %s (%d bytes)", key, path, len(data))
	return nil
}

func (cache *DiskCache) getBytes(key string) ([]byte, bool) {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCache",
		"function": "getBytes",
	})

	manager := cache.getManager()
	if manager == nil {
		cache.metrics.IncreaseCounterForMiss()
		return nil, false
	}

	path, ok := manager.Lookup(key)
	if !ok {
		cache.metrics.IncreaseCounterForMiss()
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).Errorf("failed to read cache file %s", path)
		cache.metrics.IncreaseCounterForMiss()
		return nil, false
	}

	if cache.ttlCodec.IsExpired(data) {
		logger.Debugf("Cache for key %s is expired", key)
		manager.RemoveByKey(key)
		cache.metrics.IncreaseCounterForExpired()
		cache.metrics.IncreaseCounterForMiss()
		return nil, false
	}

	manager.Touch(path)
	cache.metrics.IncreaseCounterForHit()
	return ttl.StripHeader(data), true
}

func (cache *DiskCache) putValue(typeTag string, key string, value interface{}, saveTime int) error {
	codec, ok := cache.codecs[typeTag]
	if !ok {
		return commons.NewValueCodecError(typeTag, xerrors.Errorf("no codec registered"))
	}

	data, err := codec.Marshal(value)
	if err != nil {
		cache.metrics.IncreaseCounterForPutFailure()
		return commons.NewValueCodecError(typeTag, err)
	}

	return cache.putBytes(typeTag+key, data, saveTime)
}

func (cache *DiskCache) getValue(typeTag string, key string, value interface{}) bool {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCache",
		"function": "getValue",
	})

	codec, ok := cache.codecs[typeTag]
	if !ok {
		return false
	}

	data, ok := cache.getBytes(typeTag + key)
	if !ok {
		return false
	}

	err := codec.Unmarshal(data, value)
	if err != nil {
		logger.WithError(err).Warnf("failed to decode cache for key %s", typeTag+key)
		return false
	}

	return true
}

// Lookup returns the raw payload stored for key under typeTag, without its expiration header
func (cache *DiskCache) Lookup(typeTag string, key string) ([]byte, bool) {
	return cache.getBytes(typeTag + key)
}

// PutBytes stores bytes, saveTime is in seconds (ttl.NoExpiration to keep forever)
func (cache *DiskCache) PutBytes(key string, value []byte, saveTime int) error {
	return cache.putBytes(TypeBytes+key, value, saveTime)
}

// GetBytes returns bytes, or defaultValue if absent or expired
func (cache *DiskCache) GetBytes(key string, defaultValue []byte) []byte {
	data, ok := cache.getBytes(TypeBytes + key)
	if !ok {
		return defaultValue
	}
	return data
}

// PutString stores a string
func (cache *DiskCache) PutString(key string, value string, saveTime int) error {
	return cache.putBytes(TypeString+key, []byte(value), saveTime)
}

// GetString returns a string, or defaultValue if absent or expired
func (cache *DiskCache) GetString(key string, defaultValue string) string {
	data, ok := cache.getBytes(TypeString + key)
	if !ok {
		return defaultValue
	}
	return string(data)
}

// PutJSONObject stores a JSON object
func (cache *DiskCache) PutJSONObject(key string, value map[string]interface{}, saveTime int) error {
	return cache.putValue(TypeJSONObject, key, value, saveTime)
}

// GetJSONObject returns a JSON object, or defaultValue if absent, expired or undecodable
func (cache *DiskCache) GetJSONObject(key string, defaultValue map[string]interface{}) map[string]interface{} {
	value := map[string]interface{}{}
	if !cache.getValue(TypeJSONObject, key, &value) || value == nil {
		return defaultValue
	}
	return value
}

// PutJSONArray stores a JSON array
func (cache *DiskCache) PutJSONArray(key string, value []interface{}, saveTime int) error {
	return cache.putValue(TypeJSONArray, key, value, saveTime)
}

// GetJSONArray returns a JSON array, or defaultValue if absent, expired or undecodable
func (cache *DiskCache) GetJSONArray(key string, defaultValue []interface{}) []interface{} {
	value := []interface{}{}
	if !cache.getValue(TypeJSONArray, key, &value) || value == nil {
		return defaultValue
	}
	return value
}

// PutBitmap stores an image
func (cache *DiskCache) PutBitmap(key string, value image.Image, saveTime int) error {
	return cache.putValue(TypeBitmap, key, value, saveTime)
}

// GetBitmap returns an image, or defaultValue if absent, expired or undecodable
func (cache *DiskCache) GetBitmap(key string, defaultValue image.Image) image.Image {
	var value image.Image
	if !cache.getValue(TypeBitmap, key, &value) {
		return defaultValue
	}
	return value
}

// PutDrawable stores an image under the drawable type
func (cache *DiskCache) PutDrawable(key string, value image.Image, saveTime int) error {
	return cache.putValue(TypeDrawable, key, value, saveTime)
}

// GetDrawable returns an image stored under the drawable type, or defaultValue
func (cache *DiskCache) GetDrawable(key string, defaultValue image.Image) image.Image {
	var value image.Image
	if !cache.getValue(TypeDrawable, key, &value) {
		return defaultValue
	}
	return value
}

// PutParcelable stores a protobuf message
func (cache *DiskCache) PutParcelable(key string, value proto.Message, saveTime int) error {
	return cache.putValue(TypeParcelable, key, value, saveTime)
}

// GetParcelable decodes a protobuf message into value.
// It returns false, leaving value in an unspecified state, if absent, expired or undecodable.
func (cache *DiskCache) GetParcelable(key string, value proto.Message) bool {
	return cache.getValue(TypeParcelable, key, value)
}

// PutSerializable stores an arbitrary value
func (cache *DiskCache) PutSerializable(key string, value interface{}, saveTime int) error {
	return cache.putValue(TypeSerializable, key, value, saveTime)
}

// GetSerializable decodes a value into the pointer value.
// It returns false if absent, expired or undecodable.
func (cache *DiskCache) GetSerializable(key string, value interface{}) bool {
	return cache.getValue(TypeSerializable, key, value)
}

// Inspect describes the file holding key under typeTag without refreshing its recency
func (cache *DiskCache) Inspect(typeTag string, key string) (*EntryInfo, bool) {
	manager := cache.getManager()
	if manager == nil {
		return nil, false
	}

	path, ok := manager.Lookup(typeTag + key)
	if !ok {
		return nil, false
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	entryInfo := &EntryInfo{
		Path:         path,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}

	deadline, ok := cache.ttlCodec.Deadline(data)
	if ok {
		entryInfo.Expires = true
		entryInfo.Deadline = deadline
	}

	return entryInfo, true
}

// Remove deletes key under every type tag.
// All tags are attempted; it returns true only if all of them succeeded.
func (cache *DiskCache) Remove(key string) bool {
	manager := cache.getManager()
	if manager == nil {
		return true
	}

	success := true
	for _, typeTag := range TypeTags {
		if !manager.RemoveByKey(typeTag + key) {
			success = false
		}
	}
	return success
}

// Purge deletes every expired cache file and returns how many were deleted
func (cache *DiskCache) Purge() (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskCache",
		"function": "Purge",
	})

	manager := cache.getManager()
	if manager == nil {
		return 0, commons.NewCacheDirError(cache.rootPath, nil)
	}

	paths, err := manager.ListFiles()
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, path := range paths {
		header, err := readHeader(path)
		if err != nil {
			logger.WithError(err).Warnf("failed to read cache file %s", path)
			continue
		}

		if !cache.ttlCodec.IsExpired(header) {
			continue
		}

		if manager.RemoveFile(path) {
			cache.metrics.IncreaseCounterForExpired()
			purged++
		}
	}

	logger.Debugf("Purged %d expired cache files in %s", purged, cache.rootPath)
	return purged, nil
}

func readHeader(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := make([]byte, ttl.HeaderLength)
	readLen, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return header[:readLen], nil
}

// Clear deletes all cache files
func (cache *DiskCache) Clear() bool {
	manager := cache.getManager()
	if manager == nil {
		return true
	}
	return manager.Clear()
}

func (cache *DiskCache) String() string {
	return fmt.Sprintf("%s@%p", cache.cacheKey, cache)
}
