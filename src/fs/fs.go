// Package fs provides various filesystem helpers.
package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/thought-machine/revcache/src/cli/logging"
)

var log = logging.Log

// DirPermissions are the default permission bits we apply to directories.
const DirPermissions = os.ModeDir | 0775

// EnsureDir ensures that the directory of the given file has been created.
func EnsureDir(filename string) error {
	return os.MkdirAll(filepath.Dir(filename), DirPermissions)
}

// PathExists returns true if the given path exists, as a file or a directory.
func PathExists(filename string) bool {
	_, err := os.Lstat(filename)
	return err == nil
}

// IsDirectory checks if a given path is a directory
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsSymlink returns true if the given path exists and is a symlink.
func IsSymlink(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && (info.Mode()&os.ModeSymlink) != 0
}

// WriteFile writes data from a reader to the file named 'to', with an attempt to perform
// a copy & rename to avoid chaos if anything goes wrong partway.
func WriteFile(fromFile io.Reader, to string, mode os.FileMode) error {
	dir, file := filepath.Split(to)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(dir, "."+file+".tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name()) // No-op once it's been renamed.
	if _, err := io.Copy(tempFile, fromFile); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	// OK, now file is written; adjust permissions appropriately.
	if mode == 0 {
		mode = 0664
	}
	if err := os.Chmod(tempFile.Name(), mode); err != nil {
		return err
	}
	// And move it to its final destination.
	return os.Rename(tempFile.Name(), to)
}

// Move moves a file or directory from one location to another.
// It renames where it can; if the two are on different devices it falls back to a recursive
// copy followed by removal of the original. On failure nothing is left at the destination.
// The destination must not already exist.
func Move(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	log.Debug("Can't rename %s to %s across devices, copying instead", from, to)
	if err := RecursiveCopy(from, to); err != nil {
		if err2 := os.RemoveAll(to); err2 != nil {
			log.Warning("Failed to remove partial copy %s: %s", to, err2)
		}
		return err
	}
	return os.RemoveAll(from)
}
