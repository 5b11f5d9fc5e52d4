package commons

import (
	"github.com/cyverse/cachekit/cache"
	"github.com/cyverse/cachekit/cache/disk"
	"github.com/cyverse/cachekit/cache/memory"
	"github.com/cyverse/cachekit/commons"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// OpenDiskCache returns the disk cache described by config
func OpenDiskCache(config *commons.Config) (*disk.DiskCache, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "OpenDiskCache",
	})

	options := []disk.Option{}
	if config.SerializableCompressionLevel > 0 {
		codec, err := disk.NewZstdCodec(disk.GobCodec{}, config.SerializableCompressionLevel)
		if err != nil {
			return nil, xerrors.Errorf("failed to create serializable codec: %w", err)
		}

		options = append(options, disk.WithCodec(disk.TypeSerializable, codec))
		logger.Debugf("Compressing serializable values at zstd level %d", config.SerializableCompressionLevel)
	}

	diskCache, err := disk.GetInstance(config.CacheRootPath, config.CacheSizeMax, config.CacheCountMax, options...)
	if err != nil {
		return nil, xerrors.Errorf("failed to open disk cache at %q: %w", config.CacheRootPath, err)
	}

	return diskCache, nil
}

// OpenCache returns the two-tier cache described by config and makes it the process default
func OpenCache(config *commons.Config) (*cache.DoubleCache, error) {
	diskCache, err := OpenDiskCache(config)
	if err != nil {
		return nil, err
	}

	memoryCache, err := memory.GetInstanceByCount(config.MemoryCountMax)
	if err != nil {
		return nil, xerrors.Errorf("failed to open memory cache: %w", err)
	}

	doubleCache := cache.GetInstance(memoryCache, diskCache)

	disk.SetDefaultInstance(diskCache)
	memory.SetDefaultInstance(memoryCache)
	cache.SetDefaultInstance(doubleCache)

	return doubleCache, nil
}
