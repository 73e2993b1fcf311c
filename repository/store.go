// Package repository persists per-source result sets, comparison history and
// watches.
package repository

import (
	"context"
	"sort"
	"sync"

	"pricecompare/models"
)

// ResultStore holds the per-source result sets of a comparison run. Sets are
// namespaced by run ID so concurrent runs cannot see each other's listings.
type ResultStore interface {
	Put(ctx context.Context, set models.SourceResultSet) error
	GetAll(ctx context.Context, runID string) (map[string][]models.Listing, error)
	Clear(ctx context.Context, runID string) error
}

// MemoryStore keeps result sets in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]map[string][]models.Listing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]map[string][]models.Listing),
	}
}

// Put replaces the listings stored for (run, source)
func (s *MemoryStore) Put(ctx context.Context, set models.SourceResultSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listings := make([]models.Listing, len(set.Listings))
	copy(listings, set.Listings)

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[set.RunID]
	if !ok {
		run = make(map[string][]models.Listing)
		s.runs[set.RunID] = run
	}
	run[set.Source] = listings
	return nil
}

// GetAll returns a copy of every source's listings for a run
func (s *MemoryStore) GetAll(ctx context.Context, runID string) (map[string][]models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Listing, len(s.runs[runID]))
	for source, listings := range s.runs[runID] {
		cp := make([]models.Listing, len(listings))
		copy(cp, listings)
		out[source] = cp
	}
	return out, nil
}

// Clear drops a run
func (s *MemoryStore) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

// Runs lists the stored run IDs
func (s *MemoryStore) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
