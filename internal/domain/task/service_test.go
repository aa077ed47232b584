package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

// mockRepo keeps tasks in memory. Search filters on status, owner and
// based-on. last_modified is stamped the way the table default does.
type mockRepo struct {
	mu   sync.Mutex
	rows map[string]*Task
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Task)}
}

func stampModified(t *Task) {
	if t.LastModified == nil {
		now := time.Now().UTC()
		t.LastModified = &now
	}
}

func (m *mockRepo) Create(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.FHIRID = t.ID.String()
	t.VersionID = 1
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	stampModified(t)
	cp := *t
	m.rows[t.FHIRID] = &cp
	return nil
}

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[fhirID]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	stampModified(t)
	cp := *t
	m.rows[t.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Void(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	t.Voided, t.DateVoided, t.UpdatedAt = true, &now, now
	cp := *t
	m.rows[t.FHIRID] = &cp
	return nil
}

func sameRef(ref string, id *uuid.UUID) bool {
	_, want := fhir.ParseReference(ref)
	return id != nil && id.String() == want
}

func (m *mockRepo) Search(_ context.Context, req *fhir.SearchRequest) ([]*Task, int, error) {
	if _, err := searchQuery(req); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.rows {
		if t.Voided {
			continue
		}
		if s := req.Params.Get("status"); s != "" && t.Status != s {
			continue
		}
		if ref := req.Params.Get("owner"); ref != "" && !sameRef(ref, t.OwnerID) {
			continue
		}
		if b := req.Params.Get("based-on"); b != "" && strVal(t.BasedOn) != b {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FHIRID < out[j].FHIRID })
	total := len(out)
	if req.CountOnly() || req.Offset >= total {
		return nil, total, nil
	}
	end := req.Offset + req.Count
	if end > total {
		end = total
	}
	return out[req.Offset:end], total, nil
}

func TestService_WorkQueue(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockRepo(), fhir.NewVersionTracker(fhir.NewMemoryHistoryStore()), nil)
	owner := uuid.NewString()

	mine, err := svc.Create(ctx, sampleTask(owner))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mine.ToFHIR()["lastModified"]; !ok {
		t.Error("expected lastModified to be stamped")
	}
	done := sampleTask(owner)
	done["status"] = "completed"
	if _, err := svc.Create(ctx, done); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, sampleTask(uuid.NewString())); err != nil {
		t.Fatal(err)
	}

	results, total, err := svc.Search(ctx, &fhir.SearchRequest{
		Params: map[string][]string{"owner": {"Practitioner/" + owner}, "status": {"requested"}},
		Count:  10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || results[0].ResourceID() != mine.ResourceID() {
		t.Errorf("expected only the open task, got %d", total)
	}

	_, total, err = svc.Search(ctx, &fhir.SearchRequest{
		Params: map[string][]string{"based-on": {"ServiceRequest/lab-42"}},
		Count:  10,
	})
	if err != nil || total != 3 {
		t.Errorf("expected 3 tasks based on the request, got %d (%v)", total, err)
	}
}

func TestService_Transitions(t *testing.T) {
	ctx := context.Background()
	versions := fhir.NewVersionTracker(fhir.NewMemoryHistoryStore())
	svc := NewService(newMockRepo(), versions, nil)

	created, err := svc.Create(ctx, sampleTask(uuid.NewString()))
	if err != nil {
		t.Fatal(err)
	}
	id := created.ResourceID()

	for i, status := range []string{"accepted", "in-progress", "completed"} {
		res := created.ToFHIR()
		res["status"] = status
		delete(res, "lastModified")
		updated, err := svc.Update(ctx, id, res)
		if err != nil {
			t.Fatalf("%s: %v", status, err)
		}
		if updated.GetVersionID() != i+2 {
			t.Errorf("%s: expected version %d, got %d", status, i+2, updated.GetVersionID())
		}
	}

	if _, err := svc.Update(ctx, uuid.NewString(), sampleTask(uuid.NewString())); !errors.Is(err, fhir.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, total, _ := versions.ListVersions(ctx, ResourceType, id, 10, 0); total != 5 {
		t.Errorf("expected 5 versions, got %d", total)
	}
}
