package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/gridder/internal/crud"
)

// Snapshot represents the latest applied list result available to the UI.
type Snapshot struct {
	Items               []crud.Record
	Total               *int
	HasMore             *bool
	Groups              []crud.Group
	Grouped             bool
	HasData             bool
	Generation          uint64
	Loading             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsOffline returns true when the API has been unreachable for multiple refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Begin marks a refresh for generation gen as in flight.
func (s *Store) Begin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Loading = true
	s.snapshot.Generation = gen
}

// Update replaces the stored result. When err is non-nil the previous rows are
// kept but the error is recorded for visibility.
func (s *Store) Update(gen uint64, page *crud.Page, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Generation = gen
	s.snapshot.Loading = false
	s.snapshot.LastUpdated = time.Now()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}

	if page != nil {
		s.snapshot.Items = cloneItems(page.Items)
		s.snapshot.Total = clonePtr(page.Total)
		s.snapshot.HasMore = clonePtr(page.HasMore)
		s.snapshot.Groups = append([]crud.Group(nil), page.Groups...)
		s.snapshot.Grouped = page.Grouped
		s.snapshot.HasData = true
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Items = cloneItems(s.snapshot.Items)
	snap.Groups = append([]crud.Group(nil), s.snapshot.Groups...)
	snap.Total = clonePtr(s.snapshot.Total)
	snap.HasMore = clonePtr(s.snapshot.HasMore)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneItems(items []crud.Record) []crud.Record {
	if len(items) == 0 {
		return nil
	}
	dup := make([]crud.Record, len(items))
	for i, rec := range items {
		row := make(crud.Record, len(rec))
		for k, v := range rec {
			row[k] = v
		}
		dup[i] = row
	}
	return dup
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
