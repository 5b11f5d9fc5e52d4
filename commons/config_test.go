package commons

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()

	assert.NoError(t, config.Validate())
	assert.Equal(t, CacheDirNameDefault, filepath.Base(config.CacheRootPath))
	assert.NotEmpty(t, config.InstanceID)
}

func TestConfigInstanceID(t *testing.T) {
	// one id per process unless configured
	assert.Equal(t, NewDefaultConfig().InstanceID, NewDefaultConfig().InstanceID)

	config, err := NewConfigFromYAML([]byte("instanceid: worker-1\n"))
	require.NoError(t, err)
	assert.Equal(t, "worker-1", config.InstanceID)
}

func TestNewConfigFromYAML(t *testing.T) {
	yamlBytes := []byte(`
cache_root_path: /tmp/cachekit_test
cache_size_max: 1048576
cache_count_max: 100
serializable_compression_level: 3
debug: true
`)

	config, err := NewConfigFromYAML(yamlBytes)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cachekit_test", config.CacheRootPath)
	assert.EqualValues(t, 1048576, config.CacheSizeMax)
	assert.Equal(t, 100, config.CacheCountMax)
	assert.Equal(t, 3, config.SerializableCompressionLevel)
	assert.True(t, config.Debug)

	// untouched fields keep their defaults
	assert.Equal(t, MemoryCountMaxDefault, config.MemoryCountMax)
	assert.Equal(t, MonitorIntervalDefault, config.MonitorInterval)

	_, err = NewConfigFromYAML([]byte("cache_count_max: [1, 2"))
	assert.Error(t, err)
}

func TestNewConfigFromENV(t *testing.T) {
	t.Setenv("CACHEKIT_CACHE_ROOT_PATH", "/tmp/cachekit_env")
	t.Setenv("CACHEKIT_CACHE_COUNT_MAX", "42")

	config, err := NewConfigFromENV()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cachekit_env", config.CacheRootPath)
	assert.Equal(t, 42, config.CacheCountMax)
	assert.EqualValues(t, CacheSizeMaxDefault, config.CacheSizeMax)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(config *Config){
		"empty root":         func(config *Config) { config.CacheRootPath = "" },
		"zero size":          func(config *Config) { config.CacheSizeMax = 0 },
		"negative count":     func(config *Config) { config.CacheCountMax = -1 },
		"zero memory":        func(config *Config) { config.MemoryCountMax = 0 },
		"compression level":  func(config *Config) { config.SerializableCompressionLevel = 23 },
		"zero interval":      func(config *Config) { config.MonitorInterval = 0 },
		"profile needs port": func(config *Config) { config.Profile = true; config.ProfileServicePort = 0 },
	}

	for name, mutate := range cases {
		config := NewDefaultConfig()
		mutate(config)
		assert.Error(t, config.Validate(), name)
	}
}

func TestMakeWorkDirs(t *testing.T) {
	config := NewDefaultConfig()
	config.CacheRootPath = filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, config.MakeWorkDirs())
	assert.DirExists(t, config.CacheRootPath)
	assert.True(t, filepath.IsAbs(config.CacheRootPath))
}

func TestMakeWorkDirsReturnsCacheDirError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	config := NewDefaultConfig()
	config.CacheRootPath = filepath.Join(blocker, "cache")

	err := config.MakeWorkDirs()
	require.Error(t, err)
	assert.True(t, IsCacheDirError(err))
	assert.False(t, IsValueCodecError(err))

	var dirErr *CacheDirError
	require.True(t, errors.As(err, &dirErr))
	assert.Equal(t, config.CacheRootPath, dirErr.Path)
}
