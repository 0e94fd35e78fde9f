//go:build !windows
// +build !windows

package cache

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func acquireLockFile(f *os.File) error {
	// Try a non-blocking acquire first so we can warn the user if we're waiting.
	if ok, err := tryLockFile(f); err != nil || ok {
		return err
	}
	log.Warning("Looks like another revcache is using %s. Waiting for it to finish...", f.Name())
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

// tryLockFile takes the lock if nobody else has it, returning false if they do.
func tryLockFile(f *os.File) (bool, error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func releaseLockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
