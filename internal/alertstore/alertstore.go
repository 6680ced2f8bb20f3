// Package alertstore provides the in-memory, id-deduplicated alert collection
// that backs what the station sees.
package alertstore

import (
	"sync"

	"github.com/linnemanlabs/klaxon/internal/alert"
)

// View is the read-only surface handed to consumers outside the engine.
type View interface {
	List() []alert.Record
	Get(id string) (alert.Record, bool)
	Has(id string) bool
	Unread() int
	Len() int
	Counts() (total, unread int)
	Snapshot() ([]alert.Record, int)
}

// Store holds alert records in arrival order. All methods are safe for
// concurrent use and each one is atomic with respect to the others.
type Store struct {
	mu      sync.RWMutex
	records []alert.Record // oldest arrival first; List reverses
	index   map[string]int // alert ID -> position in records
	unread  int
}

// New initializes an empty Store.
func New() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// UpsertIfNew inserts rec at the front of the collection unless a record with
// the same ID is already present. The existence check and the insert happen
// under one lock, so concurrent callers racing on the same ID see exactly one
// true.
func (s *Store) UpsertIfNew(rec alert.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[rec.ID]; ok {
		return false
	}
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	if rec.Pending() {
		s.unread++
	}
	return true
}

// ReplaceSnapshot discards the current contents and loads recs, with recs[0]
// ending up at the front. When an ID repeats, its first occurrence wins.
func (s *Store) ReplaceSnapshot(recs []alert.Record) {
	seen := make(map[string]struct{}, len(recs))
	kept := make([]alert.Record, 0, len(recs))
	for _, r := range recs {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		kept = append(kept, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]alert.Record, 0, len(kept))
	s.index = make(map[string]int, len(kept))
	s.unread = 0
	for i := len(kept) - 1; i >= 0; i-- {
		s.index[kept[i].ID] = len(s.records)
		s.records = append(s.records, kept[i])
		if kept[i].Pending() {
			s.unread++
		}
	}
}

// MarkAsRead moves the record with the given ID from pending to
// acknowledged. It returns true only when that transition happened; an
// absent ID or an already acknowledged record is a no-op.
func (s *Store) MarkAsRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok || !s.records[i].Pending() {
		return false
	}
	s.records[i].Status = alert.StatusAcknowledged
	s.unread--
	return true
}

// Clear empties the collection and resets the unread counter.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.index = make(map[string]int)
	s.unread = 0
}

// List returns a copy of all records, most recent insert first.
func (s *Store) List() []alert.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked()
}

// Snapshot returns the list and the unread count observed under one lock.
func (s *Store) Snapshot() ([]alert.Record, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(), s.unread
}

func (s *Store) listLocked() []alert.Record {
	out := make([]alert.Record, len(s.records))
	for i, r := range s.records {
		out[len(s.records)-1-i] = r
	}
	return out
}

// Get retrieves a record by ID. Returns a copy.
func (s *Store) Get(id string) (alert.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return alert.Record{}, false
	}
	return s.records[i], true
}

// Has reports whether a record with the given ID is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[id]
	return ok
}

// Unread returns the number of pending records.
func (s *Store) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unread
}

// Counts returns the number of records held and the unread count observed
// under one lock.
func (s *Store) Counts() (total, unread int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records), s.unread
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
