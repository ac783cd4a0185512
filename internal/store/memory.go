// Package store holds the current event snapshot in memory and persists
// snapshots to SQLite so a restart can serve events before the first
// refresh completes.
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusmap/internal/model"
)

// Snapshot is one complete, immutable event collection.
type Snapshot struct {
	ID        uuid.UUID
	ScrapedAt *time.Time
	Events    []model.Event
}

// NewSnapshot assigns a fresh id to events.
func NewSnapshot(events []model.Event, scrapedAt *time.Time) Snapshot {
	if events == nil {
		events = []model.Event{}
	}
	return Snapshot{ID: uuid.New(), ScrapedAt: scrapedAt, Events: events}
}

// Memory holds the current snapshot. Readers get their own copy of the
// event slice; writers replace the snapshot wholesale.
type Memory struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// Load returns a copy of the current snapshot and whether one was ever set.
func (m *Memory) Load() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Snapshot{Events: []model.Event{}}, false
	}
	out := m.snap
	out.Events = slices.Clone(m.snap.Events)
	if out.Events == nil {
		out.Events = []model.Event{}
	}
	return out, true
}

// Swap installs s and returns the snapshot it replaced. Last write wins.
func (m *Memory) Swap(s Snapshot) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.snap
	m.snap = s
	m.set = true
	return prev
}
