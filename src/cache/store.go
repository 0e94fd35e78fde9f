// Directory-based artifact store.

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/djherbis/atime"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/thought-machine/revcache/src/fs"
)

// createdAttr is the xattr we record an entry's admission time in.
// Where xattrs aren't available we fall back to the modification time, which is set at the same point.
const createdAttr = "user.revcache.created"

// stagingPrefix prefixes the names of in-progress admissions & removals within the store.
// It can never collide with a canonical entry name since keys can't start with a dot.
const stagingPrefix = ".staging-"

// An Entry is a single cached artifact.
type Entry struct {
	Key        string
	Path       string
	CreatedAt  time.Time
	AccessedAt time.Time
}

// A Store is a directory holding built artifacts, one per revision, named after the revision
// with a fixed extension. It's not safe for concurrent use; BuildCache serialises access to it.
type Store struct {
	root      string
	extension string
	now       func() time.Time
}

// NewStore returns a new store rooted at the given directory, creating it if needed.
// Anything left over from an admission that was interrupted by a crash is removed.
func NewStore(root, extension string) (*Store, error) {
	if err := os.MkdirAll(root, fs.DirPermissions); err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}
	s := &Store{
		root:      root,
		extension: extension,
		now:       time.Now,
	}
	s.sweep()
	return s, nil
}

// Root returns the directory this store lives in.
func (s *Store) Root() string {
	return s.root
}

// Path returns the canonical location of the artifact for the given key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, key+s.extension)
}

// Lookup returns the path to the artifact for the given key, if there is one.
func (s *Store) Lookup(key string) (string, bool) {
	if validateKey(key) != nil {
		return "", false
	}
	path := s.Path(key)
	return path, fs.PathExists(path)
}

// Admit moves the artifact at source into the store under the given key, replacing any
// existing entry for it. The artifact appears under its canonical name in a single rename so
// a partial one is never visible there.
// The source is consumed either way; if admission fails it's deleted rather than left behind.
func (s *Store) Admit(key, source string) (Entry, error) {
	staging := s.stagingPath()
	fail := func(err error) (Entry, error) {
		if err := os.RemoveAll(staging); err != nil {
			log.Warning("Failed to remove staged artifact %s: %s", staging, err)
		}
		discard(source)
		return Entry{}, &StoreError{Key: key, Op: "admit", Err: err}
	}
	if err := validateKey(key); err != nil {
		return fail(err)
	}
	log.Debug("Admitting %s to cache from %s", key, source)
	if err := fs.Move(source, staging); err != nil {
		return fail(err)
	}
	now := s.now()
	if err := os.Chtimes(staging, now, now); err != nil {
		return fail(err)
	}
	if err := fs.RecordTime(staging, createdAttr, now); err != nil {
		log.Debug("Can't record creation time on %s, will use its modification time: %s", staging, err)
	}
	dest := s.Path(key)
	if err := s.removePath(dest); err != nil {
		return fail(err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fail(err)
	}
	return Entry{Key: key, Path: dest, CreatedAt: now, AccessedAt: now}, nil
}

// Remove deletes the entry for the given key. It's not an error if there isn't one.
func (s *Store) Remove(key string) error {
	if validateKey(key) != nil {
		return nil
	}
	if err := s.removePath(s.Path(key)); err != nil {
		return &StoreError{Key: key, Op: "remove", Err: err}
	}
	return nil
}

// removePath removes a file or directory within the store.
// It's renamed out of the way first so a partially deleted entry is never visible under its real name.
func (s *Store) removePath(path string) error {
	if !fs.PathExists(path) {
		return nil
	}
	tmp := s.stagingPath()
	if err := os.Rename(path, tmp); err != nil {
		return err
	}
	return os.RemoveAll(tmp)
}

// A pendingEviction holds entries that have been moved out of the store but not yet deleted.
// They're no longer visible to lookups or listings; committing deletes them and rolling back
// puts them back exactly as they were.
type pendingEviction struct {
	store  *Store
	keys   []string
	staged []string
}

// beginEviction moves the entries for the given keys out of the store.
// If any can't be moved, those that were are restored and an error is returned.
func (s *Store) beginEviction(keys []string) (*pendingEviction, error) {
	p := &pendingEviction{store: s}
	for _, key := range keys {
		path := s.Path(key)
		if !fs.PathExists(path) {
			continue
		}
		staged := s.stagingPath()
		if err := os.Rename(path, staged); err != nil {
			if err2 := p.rollback(); err2 != nil {
				err = multierror.Append(err, err2)
			}
			return nil, err
		}
		p.keys = append(p.keys, key)
		p.staged = append(p.staged, staged)
	}
	return p, nil
}

// commit deletes the evicted entries. All of them are attempted regardless of errors.
func (p *pendingEviction) commit() error {
	var merr *multierror.Error
	for i, staged := range p.staged {
		if err := os.RemoveAll(staged); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("removing %s: %w", p.keys[i], err))
		}
	}
	p.keys, p.staged = nil, nil
	return merr.ErrorOrNil()
}

// rollback restores the evicted entries to the store.
func (p *pendingEviction) rollback() error {
	var merr *multierror.Error
	for i, staged := range p.staged {
		if err := os.Rename(staged, p.store.Path(p.keys[i])); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("restoring %s: %w", p.keys[i], err))
		}
	}
	p.keys, p.staged = nil, nil
	return merr.ErrorOrNil()
}

// List returns all the entries in the store, oldest first.
// Entries created at the same instant are ordered by name.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	entries := make([]Entry, 0, len(dirents))
	for _, dirent := range dirents {
		name := dirent.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, s.extension) || len(name) == len(s.extension) {
			continue
		}
		info, err := dirent.Info()
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		path := filepath.Join(s.root, name)
		created, ok := fs.ReadTime(path, createdAttr)
		if !ok {
			created = info.ModTime()
		}
		entries = append(entries, Entry{
			Key:        strings.TrimSuffix(name, s.extension),
			Path:       path,
			CreatedAt:  created,
			AccessedAt: atime.Get(info),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Count returns the number of entries in the store.
func (s *Store) Count() (int, error) {
	entries, err := s.List()
	return len(entries), err
}

// Clean removes every entry from the store.
func (s *Store) Clean() error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	var merr *multierror.Error
	for _, entry := range entries {
		if err := s.Remove(entry.Key); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return &StoreError{Op: "clean", Err: err}
	}
	return nil
}

// stagingPath returns a new unique path within the store to stage things at.
func (s *Store) stagingPath() string {
	return filepath.Join(s.root, stagingPrefix+uuid.New().String())
}

// sweep removes any staged artifacts left behind by a previous process.
// It's skipped while another process holds the lock, since the staged files may be its own.
func (s *Store) sweep() {
	unlock, ok, err := s.tryLock()
	if err != nil {
		log.Warning("Not removing leftover staging files in %s: %s", s.root, err)
		return
	} else if !ok {
		log.Debug("%s is in use, not removing leftover staging files", s.root)
		return
	}
	defer unlock()
	matches, err := filepath.Glob(filepath.Join(s.root, stagingPrefix+"*"))
	if err != nil {
		log.Warning("Failed to find leftover staging files in %s: %s", s.root, err)
		return
	}
	for _, match := range matches {
		log.Notice("Removing leftover staged artifact %s", match)
		if err := os.RemoveAll(match); err != nil {
			log.Warning("Failed to remove %s: %s", match, err)
		}
	}
}

// validateKey checks that a key can be used as a file name within the store.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty revision")
	} else if strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid revision %q: can't start with a dot", key)
	} else if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid revision %q: can't contain path separators", key)
	}
	return nil
}

// discard deletes a built artifact that won't be going into the store.
func discard(path string) {
	if path == "" || !fs.PathExists(path) {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.Warning("Failed to remove discarded artifact %s: %s", path, err)
	}
}
