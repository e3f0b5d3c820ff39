package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists records by job id. Implementations must return copies.
type Store interface {
	Get(ctx context.Context, jobID string) (*Record, bool, error)
	Set(ctx context.Context, jobID string, record *Record) error
	// Sweep removes records last updated before olderThan and reports how many were removed.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

const defaultMaxEntries = 10000

// MemoryStore is a bounded in-process store. When it grows past maxEntries the
// least recently updated records are evicted.
type MemoryStore struct {
	maxEntries int

	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		records:    make(map[string]*Record),
	}
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, jobID string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[jobID] = record.Clone()
	s.pruneLocked(jobID)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(olderThan) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// pruneLocked evicts the oldest records beyond capacity, never the one just written.
func (s *MemoryStore) pruneLocked(keep string) {
	toRemove := len(s.records) - s.maxEntries
	if toRemove <= 0 {
		return
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	candidates := make([]candidate, 0, len(s.records))
	for id, rec := range s.records {
		if id == keep {
			continue
		}
		candidates = append(candidates, candidate{id: id, updatedAt: rec.UpdatedAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].updatedAt.Before(candidates[j].updatedAt)
	})
	for i := 0; i < toRemove && i < len(candidates); i++ {
		delete(s.records, candidates[i].id)
	}
}
