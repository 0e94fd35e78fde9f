package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	filename := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(filename, []byte(contents), 0644))
	return filename
}

func TestDefaultConfig(t *testing.T) {
	config, err := ReadConfigFiles(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, config.Cache.Capacity)
	assert.Equal(t, CondaCache, config.Cache.Type)
	assert.Equal(t, ".tar.bz2", config.ArtifactExtension())
	assert.Equal(t, OldestFirst, config.Cache.Eviction)
	assert.EqualValues(t, 5*time.Second, config.Metrics.Timeout)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".cache/revcache"), config.Cache.Dir)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".revcache-machine.json"), config.Machine.File)
}

func TestConfigWorking(t *testing.T) {
	filename := writeConfig(t, `
[cache]
dir = /tmp/revcache-test
capacity = 5
type = wheel
eviction = LRU

[build]
command = python setup.py bdist_wheel -d dist
outputcommand = ls -d dist
cleancommand = rm -f .lock
timeout = 10m

[metrics]
pushgatewayurl = http://localhost:9091
`)
	config, err := ReadConfigFiles([]string{filename})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/revcache-test", config.Cache.Dir)
	assert.Equal(t, 5, config.Cache.Capacity)
	assert.Equal(t, WheelCache, config.Cache.Type)
	assert.Equal(t, "", config.ArtifactExtension())
	assert.Equal(t, LeastRecentlyUsed, config.Cache.Eviction)
	assert.Equal(t, "python setup.py bdist_wheel -d dist", config.Build.Command)
	assert.Equal(t, "ls -d dist", config.Build.OutputCommand)
	assert.Equal(t, "rm -f .lock", config.Build.CleanCommand)
	assert.EqualValues(t, 10*time.Minute, config.Build.Timeout)
	assert.Equal(t, "http://localhost:9091", config.Metrics.PushGatewayURL)
	assert.Equal(t, "revcache", config.Metrics.JobName)
}

func TestConfigMissingFileIsOK(t *testing.T) {
	_, err := ReadConfigFiles([]string{filepath.Join(t.TempDir(), "doesntexist")})
	assert.NoError(t, err)
}

func TestConfigLocalOverrides(t *testing.T) {
	main := writeConfig(t, "[cache]\ncapacity = 5\n")
	local := writeConfig(t, "[cache]\ncapacity = 2\nextension = .zip\n")
	config, err := ReadConfigFiles([]string{main, local})
	require.NoError(t, err)
	assert.Equal(t, 2, config.Cache.Capacity)
	assert.Equal(t, ".zip", config.ArtifactExtension())
}

func TestConfigFailing(t *testing.T) {
	var tests = []struct {
		description string
		contents    string
	}{
		{"negative capacity", "[cache]\ncapacity = -1\n"},
		{"unknown cache type", "[cache]\ntype = tarball\n"},
		{"unknown section", "[nope]\nthing = 1\n"},
		{"non-numeric capacity", "[cache]\ncapacity = lots\n"},
		{"unknown eviction type", "[cache]\neviction = random\n"},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			_, err := ReadConfigFiles([]string{writeConfig(t, tt.contents)})
			assert.Error(t, err)
		})
	}
}

func TestConfigOverrides(t *testing.T) {
	config := DefaultConfiguration()
	err := config.ApplyOverrides(map[string]string{
		"cache.capacity": "3",
		"Cache.Type":     "custom",
		"build.timeout":  "15",
		"build.command":  "make dist",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, config.Cache.Capacity)
	assert.Equal(t, CustomCache, config.Cache.Type)
	assert.EqualValues(t, 15*time.Second, config.Build.Timeout)
	assert.Equal(t, "make dist", config.Build.Command)
}

func TestConfigOverridesFailing(t *testing.T) {
	for _, overrides := range []map[string]string{
		{"cache": "3"},
		{"nope.capacity": "3"},
		{"cache.nope": "3"},
		{"cache.capacity": "three"},
		{"cache.capacity": "-2"},
		{"cache.type": "tarball"},
		{"cache.eviction": "newest"},
	} {
		assert.Error(t, DefaultConfiguration().ApplyOverrides(overrides))
	}
}
