package server

import (
	"context"
	"sort"
	"sync"
)

// MemHistoryStore is an in-memory HistoryStore for tests and ephemeral
// deployments.
type MemHistoryStore struct {
	mu      sync.RWMutex
	records map[string]*TranslationRecord
}

// NewMemHistoryStore creates an empty in-memory history store.
func NewMemHistoryStore() *MemHistoryStore {
	return &MemHistoryStore{records: make(map[string]*TranslationRecord)}
}

func (s *MemHistoryStore) SaveTranslation(_ context.Context, rec *TranslationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemHistoryStore) ListTranslations(_ context.Context, userID, kind string) ([]*TranslationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TranslationRecord
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Kind == kind {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemHistoryStore) DeleteTranslation(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return ErrTranslationNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemHistoryStore) ClearTranslations(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.UserID == userID {
			delete(s.records, id)
		}
	}
	return nil
}

var _ HistoryStore = (*MemHistoryStore)(nil)
