package fhir

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PagingStore keeps searches so that next/previous links can refer to them
// by an opaque id. Load returns ErrGone for unknown or expired ids.
type PagingStore interface {
	Save(ctx context.Context, req *SearchRequest) (string, error)
	Load(ctx context.Context, id string) (*SearchRequest, error)
}

// DefaultPagingTTL is how long a search stays addressable.
const DefaultPagingTTL = 30 * time.Minute

type pagedSearch struct {
	req     SearchRequest
	expires time.Time
}

// MemoryPagingStore is a PagingStore held in process memory. Expired entries
// are swept on Save.
type MemoryPagingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]pagedSearch
}

// NewMemoryPagingStore creates a store whose entries live for ttl.
func NewMemoryPagingStore(ttl time.Duration) *MemoryPagingStore {
	if ttl <= 0 {
		ttl = DefaultPagingTTL
	}
	return &MemoryPagingStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]pagedSearch),
	}
}

func (s *MemoryPagingStore) Save(_ context.Context, req *SearchRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}

	id := uuid.New().String()
	s.entries[id] = pagedSearch{req: *req, expires: now.Add(s.ttl)}
	return id, nil
}

func (s *MemoryPagingStore) Load(_ context.Context, id string) (*SearchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.now().After(e.expires) {
		delete(s.entries, id)
		return nil, ErrGone
	}
	req := e.req
	return &req, nil
}

// Len returns the number of stored searches, expired or not.
func (s *MemoryPagingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
