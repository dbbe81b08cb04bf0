package postgres

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the history in process when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]ExportRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]ExportRecord), now: time.Now}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrExportExists
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = *rec
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, rec *ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[rec.ID]
	if !ok {
		return ErrExportNotFound
	}
	rec.CreatedAt = prev.CreatedAt
	rec.UpdatedAt = s.now().UTC()
	s.records[rec.ID] = *rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*ExportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrExportNotFound
	}
	return &rec, nil
}

// List implements Store, newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]ExportRecord, error) {
	s.mu.RLock()
	recs := make([]ExportRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
