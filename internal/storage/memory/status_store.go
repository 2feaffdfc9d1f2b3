// Package memory provides an in-memory status store for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sdavenport/webknowledge/internal/ingest"
)

// StatusStore implements ingest.StatusStore with a mutex-guarded map.
type StatusStore struct {
	mu      sync.RWMutex
	records map[string]ingest.Record
}

// NewStatusStore constructs a StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{records: make(map[string]ingest.Record)}
}

// FindActive returns the active record for the (url, owner) pair.
func (s *StatusStore) FindActive(_ context.Context, url, ownerID string) (ingest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.IsActive && rec.URL == url && rec.OwnerID == ownerID {
			return rec, nil
		}
	}
	return ingest.Record{}, ingest.ErrNotFound
}

// Insert stores a new record, enforcing (url, owner) uniqueness among active
// records.
func (s *StatusStore) Insert(_ context.Context, rec ingest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.IsActive {
		for _, existing := range s.records {
			if existing.IsActive && existing.URL == rec.URL && existing.OwnerID == rec.OwnerID {
				return ingest.ErrDuplicate
			}
		}
	}
	s.records[rec.ID] = rec
	return nil
}

// Update rewrites the record identified by rec.ID.
func (s *StatusStore) Update(_ context.Context, rec ingest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return ingest.ErrNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

// QueryByStatus returns active records in the given status, oldest first.
func (s *StatusStore) QueryByStatus(_ context.Context, status ingest.Status) ([]ingest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.Record
	for _, rec := range s.records {
		if rec.IsActive && rec.Status == status {
			out = append(out, rec)
		}
	}
	sortByLastUpdate(out)
	return out, nil
}

// QueryStaleCompleted returns active completed records last updated before
// the cutoff.
func (s *StatusStore) QueryStaleCompleted(_ context.Context, cutoff time.Time) ([]ingest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.Record
	for _, rec := range s.records {
		if rec.IsActive && rec.Status == ingest.StatusCompleted && rec.LastUpdate.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sortByLastUpdate(out)
	return out, nil
}

// ListByOwner returns all active records submitted by one owner.
func (s *StatusStore) ListByOwner(_ context.Context, ownerID string) ([]ingest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.Record
	for _, rec := range s.records {
		if rec.IsActive && rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sortByLastUpdate(out)
	return out, nil
}

// Deactivate retains the record but excludes it from processing.
func (s *StatusStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ingest.ErrNotFound
	}
	rec.IsActive = false
	s.records[id] = rec
	return nil
}

// Delete removes the record entirely.
func (s *StatusStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ingest.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func sortByLastUpdate(recs []ingest.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].LastUpdate.Equal(recs[j].LastUpdate) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].LastUpdate.Before(recs[j].LastUpdate)
	})
}
