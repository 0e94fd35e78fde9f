package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), DirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "file"), nil, 0644))
	var files, dirs []string
	require.NoError(t, os.Symlink("file", filepath.Join(dir, "sub", "link")))
	var links []string
	require.NoError(t, Walk(dir, func(name string, typ os.FileMode) error {
		rel, _ := filepath.Rel(dir, name)
		if typ&os.ModeSymlink != 0 {
			links = append(links, rel)
		} else if typ.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	}))
	sort.Strings(dirs)
	assert.Equal(t, []string{".", "sub"}, dirs)
	assert.Equal(t, []string{filepath.Join("sub", "file")}, files)
	assert.Equal(t, []string{filepath.Join("sub", "link")}, links)
}

func TestWalkFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	calls := 0
	require.NoError(t, Walk(file, func(name string, typ os.FileMode) error {
		calls++
		assert.Equal(t, file, name)
		assert.True(t, typ.IsRegular())
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), DirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "one"), make([]byte, 1000), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two"), make([]byte, 234), 0644))
	size, err := DiskUsage(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 1234, size)

	size, err = DiskUsage(filepath.Join(dir, "two"))
	require.NoError(t, err)
	assert.EqualValues(t, 234, size)

	_, err = DiskUsage(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
