package commons

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/rs/xid"
	yaml "gopkg.in/yaml.v2"
)

const (
	appName   string = "cachekit"
	envPrefix string = "cachekit"
)

var (
	instanceID string
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// GetDefaultCacheBasePath returns the per-user directory holding named caches
func GetDefaultCacheBasePath() string {
	scope := gap.NewScope(gap.User, appName)
	cacheDir, err := scope.CacheDir()
	if err != nil || len(cacheDir) == 0 {
		return filepath.Join(os.TempDir(), appName)
	}

	return cacheDir
}

// GetDefaultCacheRootPath returns default cache root path
func GetDefaultCacheRootPath() string {
	return filepath.Join(GetDefaultCacheBasePath(), CacheDirNameDefault)
}

// Config holds the parameters list which can be configured
type Config struct {
	CacheRootPath                string `yaml:"cache_root_path" envconfig:"CACHE_ROOT_PATH"`
	CacheSizeMax                 int64  `yaml:"cache_size_max" envconfig:"CACHE_SIZE_MAX"`
	CacheCountMax                int    `yaml:"cache_count_max" envconfig:"CACHE_COUNT_MAX"`
	MemoryCountMax               int    `yaml:"memory_count_max" envconfig:"MEMORY_COUNT_MAX"`
	SerializableCompressionLevel int    `yaml:"serializable_compression_level,omitempty" envconfig:"SERIALIZABLE_COMPRESSION_LEVEL"`

	MonitorInterval int `yaml:"monitor_interval,omitempty" envconfig:"MONITOR_INTERVAL"`

	LogPath string `yaml:"log_path,omitempty" envconfig:"LOG_PATH"`
	Debug   bool   `yaml:"debug,omitempty" envconfig:"DEBUG"`

	Profile                bool `yaml:"profile,omitempty" envconfig:"PROFILE"`
	ProfileServicePort     int  `yaml:"profile_service_port,omitempty" envconfig:"PROFILE_SERVICE_PORT"`
	PrometheusExporterPort int  `yaml:"prometheus_exporter_port,omitempty" envconfig:"PROMETHEUS_EXPORTER_PORT"`

	InstanceID string `yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		CacheRootPath:                GetDefaultCacheRootPath(),
		CacheSizeMax:                 CacheSizeMaxDefault,
		CacheCountMax:                CacheCountMaxDefault,
		MemoryCountMax:               MemoryCountMaxDefault,
		SerializableCompressionLevel: 0,

		MonitorInterval: MonitorIntervalDefault,

		LogPath: "",
		Debug:   false,

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: 0,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML - %v", err)
	}

	return config, nil
}

// NewConfigFromENV creates Config from Environmental Variables
func NewConfigFromENV() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process(envPrefix, config)
	if err != nil {
		return nil, fmt.Errorf("failed to read environmental variables - %v", err)
	}

	return config, nil
}

// GetLogFilePath returns log file path
func (config *Config) GetLogFilePath() string {
	return config.LogPath
}

// MakeWorkDirs expands and creates the cache root directory
func (config *Config) MakeWorkDirs() error {
	cacheRootPath, err := homedir.Expand(config.CacheRootPath)
	if err != nil {
		return fmt.Errorf("failed to expand cache root path %q - %v", config.CacheRootPath, err)
	}

	cacheRootPath, err = filepath.Abs(cacheRootPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of %q - %v", cacheRootPath, err)
	}

	config.CacheRootPath = cacheRootPath

	err = os.MkdirAll(config.CacheRootPath, 0700)
	if err != nil {
		return NewCacheDirError(config.CacheRootPath, err)
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	if len(config.CacheRootPath) == 0 {
		return fmt.Errorf("cache root path must be given")
	}

	if config.CacheSizeMax <= 0 {
		return fmt.Errorf("cache size max must be a positive number")
	}

	if config.CacheCountMax <= 0 {
		return fmt.Errorf("cache count max must be a positive number")
	}

	if config.MemoryCountMax <= 0 {
		return fmt.Errorf("memory count max must be a positive number")
	}

	if config.SerializableCompressionLevel < 0 || config.SerializableCompressionLevel > 22 {
		return fmt.Errorf("serializable compression level must be between 0 and 22")
	}

	if config.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be a positive number")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return fmt.Errorf("profile service port must be given")
	}

	return nil
}
