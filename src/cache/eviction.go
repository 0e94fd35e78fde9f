package cache

import (
	"sort"

	"github.com/thought-machine/revcache/src/core"
)

// An EvictionPolicy chooses which entries to remove from a full cache.
type EvictionPolicy interface {
	// SelectVictims returns the keys of the entries to remove so there's room to admit one
	// more without exceeding capacity. It never selects anything if capacity is not positive.
	SelectVictims(entries []Entry, capacity int) []string
}

// OldestFirst evicts the entries that were created longest ago.
// Entries created at the same instant are evicted in the order they were given.
type OldestFirst struct{}

// SelectVictims implements the EvictionPolicy interface.
func (OldestFirst) SelectVictims(entries []Entry, capacity int) []string {
	return selectVictims(entries, capacity, func(a, b *Entry) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// LeastRecentlyUsed evicts the entries that were last accessed longest ago, which relies on
// the filesystem recording access times. Ties are broken by creation time.
type LeastRecentlyUsed struct{}

// SelectVictims implements the EvictionPolicy interface.
func (LeastRecentlyUsed) SelectVictims(entries []Entry, capacity int) []string {
	return selectVictims(entries, capacity, func(a, b *Entry) bool {
		if a.AccessedAt.Equal(b.AccessedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.AccessedAt.Before(b.AccessedAt)
	})
}

// selectVictims returns the first entries by the given ordering that need to go to leave room for one more.
func selectVictims(entries []Entry, capacity int, less func(a, b *Entry) bool) []string {
	if capacity <= 0 {
		return nil
	}
	excess := len(entries) - (capacity - 1)
	if excess <= 0 {
		return nil
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(&sorted[i], &sorted[j])
	})
	victims := make([]string, excess)
	for i := range victims {
		victims[i] = sorted[i].Key
	}
	return victims
}

// policyFor returns the eviction policy for the given configuration.
func policyFor(config *core.Configuration) EvictionPolicy {
	if config.Cache.Eviction == core.LeastRecentlyUsed {
		return LeastRecentlyUsed{}
	}
	return OldestFirst{}
}
