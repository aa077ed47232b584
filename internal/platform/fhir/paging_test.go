package fhir

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestMemoryPagingStore_SaveLoad(t *testing.T) {
	store := NewMemoryPagingStore(time.Minute)
	ctx := context.Background()

	req := &SearchRequest{ResourceType: "Patient", Params: url.Values{"family": {"Doe"}}, Count: 10}
	id, err := store.Save(ctx, req)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("expected a search id")
	}

	loaded, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ResourceType != "Patient" || loaded.Params.Get("family") != "Doe" || loaded.Count != 10 {
		t.Errorf("unexpected search %+v", loaded)
	}
}

func TestMemoryPagingStore_UnknownID(t *testing.T) {
	store := NewMemoryPagingStore(time.Minute)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrGone) {
		t.Errorf("expected ErrGone, got %v", err)
	}
}

func TestMemoryPagingStore_Expiry(t *testing.T) {
	store := NewMemoryPagingStore(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	id, _ := store.Save(ctx, &SearchRequest{ResourceType: "Task"})

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(ctx, id); !errors.Is(err, ErrGone) {
		t.Errorf("expected ErrGone after expiry, got %v", err)
	}
}

func TestMemoryPagingStore_SweepsOnSave(t *testing.T) {
	store := NewMemoryPagingStore(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = store.Save(ctx, &SearchRequest{ResourceType: "Task"})
	_, _ = store.Save(ctx, &SearchRequest{ResourceType: "Task"})
	now = now.Add(time.Hour)
	_, _ = store.Save(ctx, &SearchRequest{ResourceType: "Task"})

	if store.Len() != 1 {
		t.Errorf("expected expired entries to be swept, %d left", store.Len())
	}
}
