// Package cache implements a size-bounded cache of built artifacts, keyed by source revision.
//
// A BuildCache looks revisions up in a Store and, on a miss, evicts old entries to make room,
// runs a Builder and atomically admits what it produced. Each distinct revision is therefore
// built at most once for as long as it stays in the cache.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/op/go-logging.v1"

	"github.com/thought-machine/revcache/src/core"
)

var log = logging.MustGetLogger("cache")

// A BuildCache builds artifacts for revisions, retaining a bounded number of them to avoid
// rebuilding later. It's safe for concurrent use; calls are serialised so that eviction,
// building and admission happen as one unit. Modifications also take a lock file in the
// cache directory so separate processes sharing it are serialised too.
type BuildCache struct {
	store    *Store
	policy   EvictionPolicy
	capacity int
	metrics  *metrics
	mutex    sync.Mutex
}

// An Option customises a BuildCache.
type Option func(*options)

type options struct {
	policy     EvictionPolicy
	registerer prometheus.Registerer
	now        func() time.Time
}

// WithEvictionPolicy sets the policy used to choose entries to evict.
// The default is chosen by cache.eviction in the config.
func WithEvictionPolicy(policy EvictionPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithRegisterer registers the cache's metrics with the given registerer.
// By default they're recorded but not registered anywhere.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}

// WithClock overrides the function used to timestamp new entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a new BuildCache from the given configuration.
// If the configured capacity is zero the cache is disabled; it never touches the filesystem
// and every request is passed straight through to the builder.
func New(config *core.Configuration, opts ...Option) (*BuildCache, error) {
	o := options{
		policy: policyFor(config),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &BuildCache{
		policy:   o.policy,
		capacity: config.Cache.Capacity,
		metrics:  newMetrics(o.registerer),
	}
	if c.capacity <= 0 {
		log.Debug("Build cache is disabled")
		return c, nil
	}
	store, err := NewStore(config.Cache.Dir, config.ArtifactExtension())
	if err != nil {
		return nil, err
	}
	store.now = o.now
	c.store = store
	log.Debug("Build cache at %s holds up to %d artifacts", store.Root(), c.capacity)
	return c, nil
}

// Enabled returns true if this cache retains anything.
func (c *BuildCache) Enabled() bool {
	return c.store != nil
}

// Capacity returns the maximum number of artifacts this cache retains.
func (c *BuildCache) Capacity() int {
	return c.capacity
}

// GetOrBuild returns the path to the artifact for the given revision, building it with the
// given builder if it isn't already cached.
// If the build fails a *BuildError is returned and the cache is unchanged; if the artifact
// can't be stored a *StoreError is returned and the artifact is discarded. Neither is retried.
// When the cache is disabled the builder's output is returned as-is and belongs to the caller.
func (c *BuildCache) GetOrBuild(ctx context.Context, key string, builder Builder) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.store == nil {
		c.metrics.lookups.WithLabelValues("disabled").Inc()
		return c.build(ctx, key, builder)
	}
	// Reject keys the store can't hold before evicting or building anything for them.
	if err := validateKey(key); err != nil {
		return "", &StoreError{Key: key, Op: "admit", Err: err}
	}
	if path, present := c.store.Lookup(key); present {
		log.Debug("Retrieved %s from cache: %s", key, path)
		c.metrics.lookups.WithLabelValues("hit").Inc()
		return path, nil
	}
	unlock, err := c.store.lock()
	if err != nil {
		return "", err
	}
	defer unlock()
	// Another process may have built it while we waited for the lock.
	if path, present := c.store.Lookup(key); present {
		log.Debug("Retrieved %s from cache after waiting: %s", key, path)
		c.metrics.lookups.WithLabelValues("hit").Inc()
		return path, nil
	}
	c.metrics.lookups.WithLabelValues("miss").Inc()
	// Evict before building so we don't exceed capacity for the duration of the build.
	// The victims are only deleted once the build succeeds; if it fails they're restored.
	eviction, err := c.evict(key)
	if err != nil {
		return "", err
	}
	path, err := c.build(ctx, key, builder)
	if err == nil && ctx.Err() != nil {
		log.Warning("Discarding build of %s: %s", key, ctx.Err())
		discard(path)
		err = &BuildError{Key: key, Err: ctx.Err()}
	}
	if err != nil {
		if err2 := eviction.rollback(); err2 != nil {
			log.Error("Failed to restore evicted artifacts after failed build of %s: %s", key, err2)
		}
		return "", err
	}
	evicted := len(eviction.keys)
	if err := eviction.commit(); err != nil {
		discard(path)
		return "", &StoreError{Key: key, Op: "evict", Err: err}
	}
	c.metrics.evictions.Add(float64(evicted))
	entry, err := c.store.Admit(key, path)
	if err != nil {
		c.metrics.admissionFailures.Inc()
		return "", err
	}
	log.Info("Stored %s in cache: %s", key, entry.Path)
	return entry.Path, nil
}

// build runs the builder for a single revision.
func (c *BuildCache) build(ctx context.Context, key string, builder Builder) (string, error) {
	log.Notice("Building %s...", key)
	start := time.Now()
	path, err := builder.Build(ctx, key)
	c.metrics.observeBuild(err == nil, time.Since(start))
	if err != nil {
		var buildErr *BuildError
		if errors.As(err, &buildErr) {
			return "", err
		}
		return "", &BuildError{Key: key, Err: err}
	}
	log.Debug("Built %s: %s", key, path)
	return path, nil
}

// evict moves enough entries out of the store to make room for one more.
// If any of them can't be moved the whole thing fails, since we'd otherwise be about to go
// over capacity.
func (c *BuildCache) evict(key string) (*pendingEviction, error) {
	entries, err := c.store.List()
	if err != nil {
		return nil, err
	}
	victims := c.policy.SelectVictims(entries, c.capacity)
	for _, victim := range victims {
		log.Debug("Evicting %s from cache to make room for %s", victim, key)
	}
	eviction, err := c.store.beginEviction(victims)
	if err != nil {
		return nil, &StoreError{Key: key, Op: "evict", Err: err}
	}
	return eviction, nil
}

// Entries returns everything currently in the cache, oldest first.
func (c *BuildCache) Entries() ([]Entry, error) {
	if c.store == nil {
		return nil, nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.store.List()
}

// Lookup returns the path of the cached artifact for a revision, if there is one.
func (c *BuildCache) Lookup(key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.store.Lookup(key)
}

// Remove removes a single revision from the cache, if it's present.
func (c *BuildCache) Remove(key string) error {
	if c.store == nil {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	unlock, err := c.store.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return c.store.Remove(key)
}

// Clean removes everything from the cache.
func (c *BuildCache) Clean() error {
	if c.store == nil {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	unlock, err := c.store.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return c.store.Clean()
}
