package fhir

import (
	"context"
	"sort"
	"sync"
)

// MemoryHistoryStore is a HistoryStore held in process memory. It backs the
// provider tests and any deployment that runs without Postgres history.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*HistoryEntry
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{entries: make(map[string][]*HistoryEntry)}
}

func historyKey(resourceType, resourceID string) string {
	return resourceType + "/" + resourceID
}

func (s *MemoryHistoryStore) SaveVersion(_ context.Context, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	key := historyKey(entry.ResourceType, entry.ResourceID)
	s.entries[key] = append(s.entries[key], &cp)
	return nil
}

func (s *MemoryHistoryStore) GetVersion(_ context.Context, resourceType, resourceID string, versionID int) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[historyKey(resourceType, resourceID)] {
		if e.VersionID == versionID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryHistoryStore) ListVersions(_ context.Context, resourceType, resourceID string, limit, offset int) ([]*HistoryEntry, int, error) {
	s.mu.RLock()
	all := append([]*HistoryEntry(nil), s.entries[historyKey(resourceType, resourceID)]...)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].VersionID > all[j].VersionID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
