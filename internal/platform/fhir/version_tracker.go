package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// VersionTracker wraps a HistoryStore with the calls services make during
// create, update and delete.
type VersionTracker struct {
	store HistoryStore
	now   func() time.Time
}

// NewVersionTracker creates a new VersionTracker over the given store.
func NewVersionTracker(store HistoryStore) *VersionTracker {
	return &VersionTracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// RecordCreate saves version 1 of a resource after creation.
func (vt *VersionTracker) RecordCreate(ctx context.Context, resourceType, resourceID string, resource interface{}) error {
	return vt.record(ctx, resourceType, resourceID, 1, resource, ActionCreate)
}

// RecordUpdate saves a snapshot of the resource at versionID.
func (vt *VersionTracker) RecordUpdate(ctx context.Context, resourceType, resourceID string, versionID int, resource interface{}) error {
	return vt.record(ctx, resourceType, resourceID, versionID, resource, ActionUpdate)
}

// RecordDelete saves a deletion marker at versionID.
func (vt *VersionTracker) RecordDelete(ctx context.Context, resourceType, resourceID string, versionID int) error {
	return vt.record(ctx, resourceType, resourceID, versionID, nil, ActionDelete)
}

func (vt *VersionTracker) record(ctx context.Context, resourceType, resourceID string, versionID int, resource interface{}, action string) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("version tracker: marshal resource: %w", err)
	}
	return vt.store.SaveVersion(ctx, &HistoryEntry{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		VersionID:    versionID,
		Resource:     data,
		Action:       action,
		Timestamp:    vt.now(),
	})
}

// GetVersion retrieves a specific version of a resource from history.
func (vt *VersionTracker) GetVersion(ctx context.Context, resourceType, resourceID string, versionID int) (*HistoryEntry, error) {
	return vt.store.GetVersion(ctx, resourceType, resourceID, versionID)
}

// ListVersions retrieves all versions of a resource.
func (vt *VersionTracker) ListVersions(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*HistoryEntry, int, error) {
	return vt.store.ListVersions(ctx, resourceType, resourceID, limit, offset)
}
