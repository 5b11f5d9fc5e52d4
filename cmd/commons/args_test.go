package commons

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	command := &cobra.Command{Use: "test"}
	SetCommonFlags(command)
	require.NoError(t, command.ParseFlags(args))
	return command
}

func writeTestConfig(t *testing.T, cacheRoot string, profilePort int) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlBytes := []byte("cache_root_path: " + cacheRoot + "\nprofile_service_port: " + strconv.Itoa(profilePort) + "\n")
	require.NoError(t, os.WriteFile(configPath, yamlBytes, 0600))
	return configPath
}

func TestProcessCommonFlagsKeepsConfiguredProfilePort(t *testing.T) {
	cacheRoot := filepath.Join(t.TempDir(), "cache")
	configPath := writeTestConfig(t, cacheRoot, 13000)

	command := newTestCommand(t, "--config", configPath)

	config, logWriter, cont, err := ProcessCommonFlags(command)
	require.NoError(t, err)
	assert.Nil(t, logWriter)
	assert.True(t, cont)

	assert.Equal(t, 13000, config.ProfileServicePort)
	assert.Equal(t, cacheRoot, config.CacheRootPath)
	assert.DirExists(t, cacheRoot)
}

func TestProcessCommonFlagsProfilePortFlagWins(t *testing.T) {
	cacheRoot := filepath.Join(t.TempDir(), "cache")
	configPath := writeTestConfig(t, cacheRoot, 13000)

	command := newTestCommand(t, "--config", configPath, "--profile_port", "14000", "--cache_count_max", "10")

	config, _, cont, err := ProcessCommonFlags(command)
	require.NoError(t, err)
	assert.True(t, cont)

	assert.Equal(t, 14000, config.ProfileServicePort)
	assert.Equal(t, 10, config.CacheCountMax)
}

func TestProcessCommonFlagsVersionStops(t *testing.T) {
	command := newTestCommand(t, "--version")

	config, _, cont, err := ProcessCommonFlags(command)
	assert.NoError(t, err)
	assert.False(t, cont)
	assert.Nil(t, config)
}
