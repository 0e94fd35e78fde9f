package machine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheetah = Descriptor{
	Machine: "cheetah",
	OS:      "linux ubuntu 22.04",
	Arch:    "x86_64",
	CPU:     "Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz",
	NumCPU:  12,
	RAM:     "31 GiB",
}

func TestSaveAndLoad(t *testing.T) {
	c := NewCollection(filepath.Join(t.TempDir(), "machines", "machine.json"))
	require.NoError(t, c.Save("cheetah", cheetah))
	d, err := c.Load("cheetah")
	require.NoError(t, err)
	assert.Equal(t, cheetah, d)
}

func TestSaveKeepsOtherMachines(t *testing.T) {
	c := NewCollection(filepath.Join(t.TempDir(), "machine.json"))
	require.NoError(t, c.Save("cheetah", cheetah))
	other := cheetah
	other.Machine = "ocelot"
	other.GPU = "NVIDIA GeForce RTX 3080"
	require.NoError(t, c.Save("ocelot", other))
	names, err := c.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"cheetah", "ocelot"}, names)

	d, err := c.Load("ocelot")
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA GeForce RTX 3080", d.GPU)
	d, err = c.Load("cheetah")
	require.NoError(t, err)
	assert.Equal(t, cheetah, d)
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.json")
	require.NoError(t, NewCollection(path).Save("cheetah", cheetah))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "1", string(doc["version"]))
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(doc["cheetah"], &m))
	assert.Equal(t, "x86_64", m["arch"])
	assert.Equal(t, "31 GiB", m["ram"])
	_, present := m["gpu"]
	assert.False(t, present)
}

func TestLoadNotFound(t *testing.T) {
	c := NewCollection(filepath.Join(t.TempDir(), "machine.json"))
	require.NoError(t, c.Save("cheetah", cheetah))
	require.NoError(t, c.Save("ocelot", cheetah))
	_, err := c.Load("lynx")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "cheetah, ocelot")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewCollection(filepath.Join(t.TempDir(), "machine.json")).Load("cheetah")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadSingleMachineOnThisHost(t *testing.T) {
	hostname = func() (string, error) { return "build-box-17", nil }
	defer func() { hostname = os.Hostname }()

	c := NewCollection(filepath.Join(t.TempDir(), "machine.json"))
	require.NoError(t, c.Save("cheetah", cheetah))
	d, err := c.Load("build-box-17")
	require.NoError(t, err)
	assert.Equal(t, cheetah, d)
	// Other names still aren't found.
	_, err = c.Load("lynx")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 2, "cheetah": {"machine": "cheetah"}}`), 0644))
	_, err := NewCollection(path).Load("cheetah")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Error(t, NewCollection(path).Save("ocelot", cheetah))
}

func TestLoadInvalidFiles(t *testing.T) {
	for name, contents := range map[string]string{
		"NotJSON":    "machine: cheetah",
		"NoVersion":  `{"cheetah": {"machine": "cheetah"}}`,
		"BadVersion": `{"version": "one"}`,
		"BadMachine": `{"version": 1, "cheetah": "fast"}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "machine.json")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
			_, err := NewCollection(path).Load("cheetah")
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestSaveInvalidName(t *testing.T) {
	c := NewCollection(filepath.Join(t.TempDir(), "machine.json"))
	assert.Error(t, c.Save("", cheetah))
	assert.Error(t, c.Save("version", cheetah))
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.NotEqual(t, "", d.Machine)
	assert.NotEqual(t, "", d.Arch)
}
