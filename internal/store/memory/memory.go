// Package memory is an in-process store, used for tests and single-node
// deployments that accept losing data on restart.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/store"
)

// Store keeps resources as records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.Record // ID -> Record
	revs    map[string]int64         // ID -> revision
}

// New creates an empty memory store
func New() *Store {
	return &Store{
		records: make(map[string]domain.Record),
		revs:    make(map[string]int64),
	}
}

// Load retrieves a resource by ID
func (s *Store) Load(_ context.Context, id string) (*domain.Resource, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	r, err := domain.FromRecord(rec, domain.DefaultLimits())
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode resource %s: %w", id, err)
	}
	r.SetMeta(store.MetaRev, strconv.FormatInt(s.revs[id], 10))
	return r, true, nil
}

// Insert adds a new resource
func (s *Store) Insert(_ context.Context, r *domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID()]; ok {
		return store.ErrAlreadyExists
	}
	s.put(r, 1)
	return nil
}

// Update replaces an existing resource if its revision still matches
func (s *Store) Update(_ context.Context, r *domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.revs[r.ID()]
	if !ok {
		return store.ErrNotFound
	}
	if r.Meta(store.MetaRev) != strconv.FormatInt(current, 10) {
		return store.ErrConflict
	}
	s.put(r, current+1)
	return nil
}

// put stores a copy of r at rev. Caller holds the write lock.
func (s *Store) put(r *domain.Resource, rev int64) {
	rec := r.Record()
	rec.Meta = nil
	s.records[r.ID()] = rec
	s.revs[r.ID()] = rev
	r.SetMeta(store.MetaRev, strconv.FormatInt(rev, 10))
}

// Delete removes a resource
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	delete(s.revs, id)
	return nil
}

// PurgeNotFound drops NOTFOUND resources last updated before the cutoff
func (s *Store) PurgeNotFound(_ context.Context, before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	notFound := domain.StatusNotFound.Code()
	for id, rec := range s.records {
		if rec.Status == notFound && rec.Updated.Before(before) {
			delete(s.records, id)
			delete(s.revs, id)
			purged = append(purged, id)
		}
	}
	return purged, nil
}

// Count returns the number of stored resources
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
