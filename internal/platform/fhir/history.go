package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/platform/db"
)

// History actions recorded alongside each version.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// HistoryEntry represents a single version of a resource stored in the resource_history table.
type HistoryEntry struct {
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	VersionID    int             `json:"version_id"`
	Resource     json.RawMessage `json:"resource"`
	Action       string          `json:"action"`
	Timestamp    time.Time       `json:"timestamp"`
}

// HistoryStore persists resource versions. HistoryRepository is the Postgres
// implementation; tests use an in-memory one.
type HistoryStore interface {
	SaveVersion(ctx context.Context, entry *HistoryEntry) error
	GetVersion(ctx context.Context, resourceType, resourceID string, versionID int) (*HistoryEntry, error)
	ListVersions(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*HistoryEntry, int, error)
}

// HistoryRepository provides access to the shared resource_history table.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// SaveVersion stores a snapshot of a resource version in the history table.
func (r *HistoryRepository) SaveVersion(ctx context.Context, entry *HistoryEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO resource_history (resource_type, resource_id, version_id, resource, action, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ResourceType, entry.ResourceID, entry.VersionID, []byte(entry.Resource), entry.Action, ts)
	if err != nil {
		return fmt.Errorf("save history version: %w", err)
	}
	return nil
}

// GetVersion retrieves a specific version of a resource. A missing version
// returns ErrNotFound.
func (r *HistoryRepository) GetVersion(ctx context.Context, resourceType, resourceID string, versionID int) (*HistoryEntry, error) {
	var h HistoryEntry
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT resource_type, resource_id, version_id, resource, action, timestamp
		FROM resource_history
		WHERE resource_type = $1 AND resource_id = $2 AND version_id = $3`,
		resourceType, resourceID, versionID).
		Scan(&h.ResourceType, &h.ResourceID, &h.VersionID, &raw, &h.Action, &h.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get history version: %w", err)
	}
	h.Resource = raw
	return &h, nil
}

// ListVersions retrieves all versions of a resource, ordered by version descending.
func (r *HistoryRepository) ListVersions(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*HistoryEntry, int, error) {
	q := r.conn(ctx)

	var total int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM resource_history
		WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count history versions: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT resource_type, resource_id, version_id, resource, action, timestamp
		FROM resource_history
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY version_id DESC
		LIMIT $3 OFFSET $4`,
		resourceType, resourceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history versions: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var raw []byte
		if err := rows.Scan(&h.ResourceType, &h.ResourceID, &h.VersionID, &raw, &h.Action, &h.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scan history entry: %w", err)
		}
		h.Resource = raw
		entries = append(entries, &h)
	}
	return entries, total, rows.Err()
}

// NewHistoryBundle creates a FHIR Bundle of type "history" from history entries.
func NewHistoryBundle(entries []*HistoryEntry, total int, baseURL string) *Bundle {
	now := time.Now().UTC()
	base := strings.TrimSuffix(baseURL, "/")
	bundleEntries := make([]BundleEntry, len(entries))

	for i, entry := range entries {
		method := "PUT"
		status := "200 OK"
		switch entry.Action {
		case ActionCreate:
			method = "POST"
			status = "201 Created"
		case ActionDelete:
			method = "DELETE"
			status = "200 OK"
		}

		ts := entry.Timestamp
		be := BundleEntry{
			FullURL: fmt.Sprintf("%s/%s/%s", base, entry.ResourceType, entry.ResourceID),
			Request: &BundleRequest{
				Method: method,
				URL:    fmt.Sprintf("%s/%s", entry.ResourceType, entry.ResourceID),
			},
			Response: &BundleResponse{
				Status:       status,
				Location:     fmt.Sprintf("%s/%s/_history/%d", entry.ResourceType, entry.ResourceID, entry.VersionID),
				LastModified: &ts,
			},
		}
		if entry.Action != ActionDelete && len(entry.Resource) > 0 && string(entry.Resource) != "null" {
			be.Resource = entry.Resource
		}
		bundleEntries[i] = be
	}

	return &Bundle{
		ResourceType: "Bundle",
		ID:           newBundleID(),
		Type:         "history",
		Total:        &total,
		Timestamp:    &now,
		Link:         []BundleLink{{Relation: "self", URL: base}},
		Entry:        bundleEntries,
	}
}
