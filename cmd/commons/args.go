package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cyverse/cachekit/commons"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func SetCommonFlags(command *cobra.Command) {
	command.PersistentFlags().BoolP("version", "v", false, "Print version")
	command.PersistentFlags().BoolP("help", "h", false, "Print help")
	command.PersistentFlags().BoolP("debug", "d", false, "Enable debug mode")
	command.PersistentFlags().BoolP("profile", "", false, "Enable profiling")

	command.PersistentFlags().StringP("config", "", "", "Set config file (yaml)")
	command.PersistentFlags().StringP("cache_root", "", commons.GetDefaultCacheRootPath(), "Set cache root path")
	command.PersistentFlags().Int64P("cache_size_max", "", 0, "Set cache max size in bytes")
	command.PersistentFlags().IntP("cache_count_max", "", 0, "Set cache max file count")
	command.PersistentFlags().StringP("log", "", "", "Set log file path")

	command.PersistentFlags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}

	return value
}

// ProcessCommonFlags builds the configuration from the config file, environment and flags, in that order.
// It returns false if the command should stop, e.g. after printing help or version.
func ProcessCommonFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := getBoolFlag(command, "debug")
	profile := getBoolFlag(command, "profile")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "help") {
		PrintHelp(command)
		return nil, nil, false, nil // stop here
	}

	if getBoolFlag(command, "version") {
		PrintVersion(command)
		return nil, nil, false, nil // stop here
	}

	readConfig := false
	var config *commons.Config

	configFlag := command.Flags().Lookup("config")
	if configFlag != nil {
		configPath := configFlag.Value.String()
		if len(configPath) > 0 {
			yamlBytes, err := os.ReadFile(configPath)
			if err != nil {
				logger.Error(err)
				return nil, nil, false, err // stop here
			}

			fileConfig, err := commons.NewConfigFromYAML(yamlBytes)
			if err != nil {
				logger.Error(err)
				return nil, nil, false, err // stop here
			}

			// overwrite config
			config = fileConfig
			readConfig = true
		}
	}

	// env config
	if !readConfig {
		envConfig, err := commons.NewConfigFromENV()
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err // stop here
		}

		config = envConfig
	}

	// prioritize command-line flag over config files
	if debug {
		config.Debug = true
	}

	if profile {
		config.Profile = true
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	logFlag := command.Flags().Lookup("log")
	if logFlag != nil && command.Flags().Changed("log") {
		config.LogPath = logFlag.Value.String()
	}

	var logWriter io.WriteCloser
	logPath := config.GetLogFilePath()
	if logPath == "-" || len(logPath) == 0 {
		log.SetOutput(os.Stderr)
	} else {
		fileLogWriter, logFilePath := getLogWriter(logPath)
		logWriter = fileLogWriter

		// use multi output - to output to file and stderr
		mw := io.MultiWriter(os.Stderr, fileLogWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", logFilePath)
	}

	cacheRootFlag := command.Flags().Lookup("cache_root")
	if cacheRootFlag != nil && (command.Flags().Changed("cache_root") || len(config.CacheRootPath) == 0) {
		cacheRoot := cacheRootFlag.Value.String()
		if len(cacheRoot) > 0 {
			config.CacheRootPath = cacheRoot
		}
	}

	cacheSizeMaxFlag := command.Flags().Lookup("cache_size_max")
	if cacheSizeMaxFlag != nil {
		cacheSizeMax, err := strconv.ParseInt(cacheSizeMaxFlag.Value.String(), 10, 64)
		if err != nil {
			logger.WithError(err).Errorf("failed to convert input to int64")
			return nil, logWriter, false, err // stop here
		}

		if cacheSizeMax > 0 {
			config.CacheSizeMax = cacheSizeMax
		}
	}

	cacheCountMaxFlag := command.Flags().Lookup("cache_count_max")
	if cacheCountMaxFlag != nil {
		cacheCountMax, err := strconv.ParseInt(cacheCountMaxFlag.Value.String(), 10, 32)
		if err != nil {
			logger.WithError(err).Errorf("failed to convert input to int")
			return nil, logWriter, false, err // stop here
		}

		if cacheCountMax > 0 {
			config.CacheCountMax = int(cacheCountMax)
		}
	}

	profilePortFlag := command.Flags().Lookup("profile_port")
	if profilePortFlag != nil && (command.Flags().Changed("profile_port") || config.ProfileServicePort <= 0) {
		profilePort, err := strconv.ParseInt(profilePortFlag.Value.String(), 10, 32)
		if err != nil {
			logger.WithError(err).Errorf("failed to convert input to int")
			return nil, logWriter, false, err // stop here
		}

		if profilePort > 0 {
			config.ProfileServicePort = int(profilePort)
		}
	}

	err := config.MakeWorkDirs()
	if err != nil {
		logger.WithError(err).Error("failed to prepare cache root")
		return nil, logWriter, false, err // stop here
	}

	err = config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, logWriter, false, err // stop here
	}

	return config, logWriter, true, nil // continue
}

func PrintVersion(command *cobra.Command) error {
	info, err := commons.GetVersionJSON()
	if err != nil {
		return err
	}

	fmt.Println(info)
	return nil
}

func PrintHelp(command *cobra.Command) error {
	return command.Usage()
}

func getLogWriter(logPath string) (io.WriteCloser, string) {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}, logPath
}
