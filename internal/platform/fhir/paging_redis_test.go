package fhir

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisPagingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPagingStore(client, time.Minute, "test:"), mr
}

func TestRedisPagingStore_SaveLoad(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	req := &SearchRequest{
		ResourceType: "Observation",
		Params:       url.Values{"code": {"8480-6"}, "subject.name": {"Doe"}},
		Sort:         "-date",
		Count:        5,
		Offset:       5,
	}
	id, err := store.Save(ctx, req)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:"+id))
	assert.Equal(t, time.Minute, mr.TTL("test:"+id))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, req, loaded)
}

func TestRedisPagingStore_Expired(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, &SearchRequest{ResourceType: "Patient", Count: 10})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Load(ctx, id)
	assert.True(t, errors.Is(err, ErrGone), "expected ErrGone, got %v", err)
}

func TestRedisPagingStore_CorruptPayload(t *testing.T) {
	store, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))

	_, err := store.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGone))
}
