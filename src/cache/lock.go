package cache

import (
	"os"
	"path/filepath"
	"strconv"
)

// lockFileName is the file within the store used to exclude other revcache processes.
const lockFileName = ".lock"

// lock acquires an exclusive lock on the store so other processes using it wait for us.
// The returned function releases it.
func (s *Store) lock() (func(), error) {
	unlock, _, err := s.acquireLock(true)
	return unlock, err
}

// tryLock is like lock but gives up immediately, returning false, if someone else holds it.
func (s *Store) tryLock() (func(), bool, error) {
	return s.acquireLock(false)
}

func (s *Store) acquireLock(block bool) (func(), bool, error) {
	path := filepath.Join(s.root, lockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, &StoreError{Op: "lock", Err: err}
	}
	if block {
		err = acquireLockFile(f)
	} else if ok, err2 := tryLockFile(f); err2 != nil {
		err = err2
	} else if !ok {
		f.Close()
		return nil, false, nil
	}
	if err != nil {
		f.Close()
		return nil, false, &StoreError{Op: "lock", Err: err}
	}
	// Record who has it, which is useful when wondering why we're waiting.
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return func() {
		if err := releaseLockFile(f); err != nil {
			log.Errorf("Failed to release lock: %s", err)
		}
		if err := f.Close(); err != nil {
			log.Errorf("Failed to close lock file: %s", err)
		}
	}, true, nil
}
