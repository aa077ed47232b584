package practitioner

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

type mockRepo struct {
	mu   sync.Mutex
	rows map[string]*Practitioner
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Practitioner)}
}

func (m *mockRepo) Create(_ context.Context, p *Practitioner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.FHIRID = p.ID.String()
	p.VersionID = 1
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.rows[p.FHIRID] = &cp
	return nil
}

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirID string) (*Practitioner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[fhirID]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Practitioner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.rows[p.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Void(_ context.Context, p *Practitioner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p.Voided, p.DateVoided, p.UpdatedAt = true, &now, now
	cp := *p
	m.rows[p.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Search(_ context.Context, req *fhir.SearchRequest) ([]*Practitioner, int, error) {
	if _, err := searchQuery(req); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Practitioner
	for _, p := range m.rows {
		if !p.Voided {
			cp := *p
			out = append(out, &cp)
		}
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

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	versions := fhir.NewVersionTracker(fhir.NewMemoryHistoryStore())
	svc := NewService(newMockRepo(), versions, nil)

	created, err := svc.Create(ctx, samplePractitioner())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.ResourceID()

	res := samplePractitioner()
	res["active"] = false
	updated, err := svc.Update(ctx, id, res)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.GetVersionID() != 2 || updated.ToFHIR()["active"] != false {
		t.Errorf("unexpected update result v%d %v", updated.GetVersionID(), updated.ToFHIR()["active"])
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Read(ctx, id); !errors.Is(err, fhir.ErrGone) {
		t.Errorf("expected ErrGone, got %v", err)
	}
	if _, total, _ := versions.ListVersions(ctx, ResourceType, id, 10, 0); total != 3 {
		t.Errorf("expected 3 versions, got %d", total)
	}
	if err := svc.Delete(ctx, "missing"); !errors.Is(err, fhir.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
