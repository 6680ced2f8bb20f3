// Package memjournal provides a bounded in-memory implementation of
// journal.Journal.
package memjournal

import (
	"context"
	"sync"

	"github.com/linnemanlabs/klaxon/internal/journal"
)

// DefaultCapacity bounds the number of entries kept.
const DefaultCapacity = 1000

// Journal keeps the most recent entries in a ring. Suitable for dev/testing
// and for deployments without a database.
type Journal struct {
	mu      sync.RWMutex
	entries []journal.Entry
	next    int
	full    bool
}

// New initializes a Journal holding up to capacity entries.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{entries: make([]journal.Entry, capacity)}
}

// Record stores a copy of e, evicting the oldest entry when full.
func (j *Journal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (j *Journal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := j.next
	if j.full {
		n = len(j.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]journal.Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (j.next - 1 - i + len(j.entries)) % len(j.entries)
		out = append(out, j.entries[idx])
	}
	return out, nil
}
