package fhir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPagingStore is a PagingStore shared by every server instance behind
// a load balancer.
type RedisPagingStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisPagingStore creates a store writing keys "<prefix><id>".
func NewRedisPagingStore(client redis.UniversalClient, ttl time.Duration, prefix string) *RedisPagingStore {
	if ttl <= 0 {
		ttl = DefaultPagingTTL
	}
	if prefix == "" {
		prefix = "fhir:paging:"
	}
	return &RedisPagingStore{client: client, ttl: ttl, prefix: prefix}
}

func (s *RedisPagingStore) Save(ctx context.Context, req *SearchRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}
	id := uuid.New().String()
	if err := s.client.Set(ctx, s.prefix+id, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store search %s: %w", id, err)
	}
	return id, nil
}

func (s *RedisPagingStore) Load(ctx context.Context, id string) (*SearchRequest, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGone
	}
	if err != nil {
		return nil, fmt.Errorf("load search %s: %w", id, err)
	}
	var req SearchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode search %s: %w", id, err)
	}
	return &req, nil
}
