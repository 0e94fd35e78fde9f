package fs

import (
	"os"
	"path/filepath"
)

// CopyFile copies a file from 'from' to 'to'.
// If mode is zero the source file's permissions are preserved.
func CopyFile(from string, to string, mode os.FileMode) error {
	fromFile, err := os.Open(from)
	if err != nil {
		return err
	}
	defer fromFile.Close()
	if mode == 0 {
		info, err := fromFile.Stat()
		if err != nil {
			return err
		}
		mode = info.Mode().Perm()
	}
	return WriteFile(fromFile, to, mode)
}

// RecursiveCopy copies either a single file or a directory, preserving file permissions.
// Symlinks are recreated rather than followed.
func RecursiveCopy(from string, to string) error {
	info, err := os.Lstat(from)
	if err != nil {
		return err
	} else if !info.IsDir() {
		return copyOne(from, to, info.Mode().Type())
	}
	return Walk(from, func(name string, typ os.FileMode) error {
		dest := filepath.Join(to, name[len(from):])
		if typ.IsDir() {
			return os.MkdirAll(dest, DirPermissions)
		}
		return copyOne(name, dest, typ)
	})
}

func copyOne(from, to string, typ os.FileMode) error {
	if typ&os.ModeSymlink != 0 {
		dest, err := os.Readlink(from)
		if err != nil {
			return err
		}
		return os.Symlink(dest, to)
	}
	return CopyFile(from, to, 0)
}
