package patient

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func toMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

// mockRepo keeps patients in memory. Search validates the request with the
// real query builder and filters on gender and family only.
type mockRepo struct {
	mu   sync.Mutex
	rows map[string]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
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

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[fhirID]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[p.FHIRID]; !ok {
		return fhir.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.rows[p.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Void(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p.Voided = true
	p.DateVoided = &now
	p.UpdatedAt = now
	cp := *p
	m.rows[p.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Search(_ context.Context, req *fhir.SearchRequest) ([]*Patient, int, error) {
	if _, err := searchQuery(req); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []*Patient
	for _, p := range m.rows {
		if p.Voided {
			continue
		}
		if g := req.Params.Get("gender"); g != "" && strVal(p.Gender) != g {
			continue
		}
		if f := req.Params.Get("family"); f != "" && !strings.HasPrefix(strings.ToLower(strVal(p.FamilyName)), strings.ToLower(f)) {
			continue
		}
		cp := *p
		matches = append(matches, &cp)
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := strVal(matches[i].FamilyName), strVal(matches[j].FamilyName)
		if a != b {
			return a < b
		}
		return matches[i].FHIRID < matches[j].FHIRID
	})

	total := len(matches)
	if req.CountOnly() || req.Offset >= total {
		return nil, total, nil
	}
	end := req.Offset + req.Count
	if end > total {
		end = total
	}
	return matches[req.Offset:end], total, nil
}
