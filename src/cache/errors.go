package cache

import "fmt"

// A BuildError is returned when the builder fails to produce an artifact for a revision,
// including when it's interrupted. The store is never modified when one is returned.
type BuildError struct {
	Key string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build revision %s: %s", e.Key, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// A StoreError is returned when the filesystem operations backing the cache fail.
// Op names the operation that failed, e.g. admit or evict.
type StoreError struct {
	Key string
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s failed: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s for revision %s failed: %s", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
