package fs

import (
	"os"

	"github.com/karrick/godirwalk"
)

// Walk calls the callback for the given path and, if it's a directory, everything beneath it.
// The callback receives only the type bits of each file's mode (e.g. os.ModeDir or
// os.ModeSymlink), not its permissions. Symlinks are not followed.
func Walk(root string, callback func(path string, typ os.FileMode) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	} else if !info.IsDir() {
		return callback(root, info.Mode().Type())
	}
	return godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, dirent *godirwalk.Dirent) error {
			return callback(path, dirent.ModeType())
		},
		Unsorted: true,
	})
}

// DiskUsage returns the total size in bytes of the given file, or of every file beneath it
// if it's a directory.
func DiskUsage(path string) (uint64, error) {
	var total uint64
	err := Walk(path, func(name string, typ os.FileMode) error {
		if typ.IsDir() {
			return nil
		}
		info, err := os.Lstat(name)
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}
