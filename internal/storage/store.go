// Package storage implements the versioned keyed observation store.
//
// Observations are kept in a slot table; a map from feed key to slot makes
// them reachable. Keys are derived from the feed identity and the current
// storage version, so Reset makes every previously valid identity permanently
// unreachable by bumping the version.
//
// Interactions:
//   - producers write via Add/Update (never silently overwriting)
//   - the router reads base inputs via Get
//   - callers check permissions before reads
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/logging"
)

var log = logging.Component("storage")

// Slot is an opaque reference to the storage cell of an observation.
type Slot int

type cell struct {
	feed feed.Feed
	data feed.Data
	live bool
}

// Entry is a live observation with its identity.
type Entry struct {
	Feed    feed.Feed
	Data    feed.Data
	Slot    Slot
	Version uint64
}

// Store is safe for concurrent use: readers share a lock, writers are
// exclusive with each other and with readers.
type Store struct {
	mu      sync.RWMutex
	cells   []cell
	index   map[feed.Key]Slot
	version uint64

	stats counters
}

type counters struct {
	adds    atomic.Int64
	updates atomic.Int64
	removes atomic.Int64
	resets  atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates an empty store at version 0.
func New() *Store {
	return &Store{index: make(map[feed.Key]Slot)}
}

// Add stores a new observation. It fails with ErrFeedAlreadyExists if the
// feed already has an entry under the current version.
func (s *Store) Add(f feed.Feed, value float64, timestamp int64) (Slot, error) {
	return s.add(f, value, timestamp, -1)
}

// AddAt is Add with a preferred slot. A slot that is in range and no longer
// referenced is reused; otherwise a new slot is appended.
func (s *Store) AddAt(f feed.Feed, value float64, timestamp int64, target Slot) (Slot, error) {
	return s.add(f, value, timestamp, target)
}

func (s *Store) add(f feed.Feed, value float64, timestamp int64, target Slot) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feed.KeyOf(f, s.version)
	if _, ok := s.index[key]; ok {
		return 0, errors.Wrapf(errors.ErrFeedAlreadyExists, "add %s", f)
	}

	c := cell{feed: f, data: feed.Data{Value: value, Timestamp: timestamp}, live: true}

	var slot Slot
	if target >= 0 && int(target) < len(s.cells) && !s.cells[target].live {
		slot = target
		s.cells[slot] = c
	} else {
		slot = Slot(len(s.cells))
		s.cells = append(s.cells, c)
	}
	s.index[key] = slot
	s.stats.adds.Add(1)

	return slot, nil
}

// Get returns the latest observation of f.
func (s *Store) Get(f feed.Feed) (feed.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.index[feed.KeyOf(f, s.version)]
	if !ok {
		s.stats.misses.Add(1)
		return feed.Data{}, errors.Wrapf(errors.ErrFeedNotFound, "get %s", f)
	}
	s.stats.hits.Add(1)
	return s.cells[slot].data, nil
}

// Lookup returns the slot of f, if present.
func (s *Store) Lookup(f feed.Feed) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.index[feed.KeyOf(f, s.version)]
	return slot, ok
}

// Update overwrites value and timestamp of an existing entry in place.
func (s *Store) Update(f feed.Feed, value float64, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.index[feed.KeyOf(f, s.version)]
	if !ok {
		return errors.Wrapf(errors.ErrFeedNotFound, "update %s", f)
	}
	s.cells[slot].data = feed.Data{Value: value, Timestamp: timestamp}
	s.stats.updates.Add(1)
	return nil
}

// Remove deletes the identity mapping of f. The slot contents are left in
// place until reused or reset.
func (s *Store) Remove(f feed.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feed.KeyOf(f, s.version)
	slot, ok := s.index[key]
	if !ok {
		return errors.Wrapf(errors.ErrFeedNotFound, "remove %s", f)
	}
	delete(s.index, key)
	s.cells[slot].live = false
	s.stats.removes.Add(1)
	return nil
}

// Reset drops every entry and advances the version.
func (s *Store) Reset() {
	s.mu.Lock()
	old := s.version
	dropped := len(s.index)
	s.cells = nil
	s.index = make(map[feed.Key]Slot)
	s.version++
	s.mu.Unlock()

	s.stats.resets.Add(1)
	log.Info("storage reset", "old_version", old, "new_version", old+1, "dropped", dropped)
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Version returns the current storage version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns all live entries ordered by slot.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.index))
	for i, c := range s.cells {
		if !c.live {
			continue
		}
		entries = append(entries, Entry{
			Feed:    c.feed,
			Data:    c.data,
			Slot:    Slot(i),
			Version: s.version,
		})
	}
	return entries
}

// Stats holds store counters.
type Stats struct {
	Version uint64
	Entries int
	Slots   int
	Adds    int64
	Updates int64
	Removes int64
	Resets  int64
	Hits    int64
	Misses  int64
}

// Stats returns a point-in-time view of the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Version: s.version,
		Entries: len(s.index),
		Slots:   len(s.cells),
	}
	s.mu.RUnlock()

	st.Adds = s.stats.adds.Load()
	st.Updates = s.stats.updates.Load()
	st.Removes = s.stats.removes.Load()
	st.Resets = s.stats.resets.Load()
	st.Hits = s.stats.hits.Load()
	st.Misses = s.stats.misses.Load()
	return st
}
