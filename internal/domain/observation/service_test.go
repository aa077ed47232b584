package observation

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

// mockRepo keeps observations in memory. Encounter starts are looked up in
// encounterStarts, keyed by encounter id.
type mockRepo struct {
	mu              sync.Mutex
	rows            map[string]*Observation
	encounterStarts map[uuid.UUID]time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Observation), encounterStarts: make(map[uuid.UUID]time.Time)}
}

func (m *mockRepo) Create(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	o.FHIRID = o.ID.String()
	o.VersionID = 1
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.rows[o.FHIRID] = &cp
	return nil
}

func (m *mockRepo) GetByFHIRID(_ context.Context, fhirID string) (*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[fhirID]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	m.rows[o.FHIRID] = &cp
	return nil
}

func (m *mockRepo) Void(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	o.Voided, o.DateVoided, o.UpdatedAt = true, &now, now
	cp := *o
	m.rows[o.FHIRID] = &cp
	return nil
}

// matches supports patient, subject, code and category with comma
// separated alternatives.
func matches(o *Observation, params url.Values) bool {
	for name, values := range params {
		for _, value := range values {
			ok := false
			for _, v := range strings.Split(value, ",") {
				switch name {
				case "patient", "subject":
					_, id := fhir.ParseReference(v)
					ok = ok || o.PatientID.String() == id
				case "code":
					ok = ok || o.CodeValue == v || o.CodeKey() == v
				case "category":
					ok = ok || strVal(o.CategoryCode) == v
				default:
					ok = true
				}
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

func (m *mockRepo) Search(_ context.Context, req *fhir.SearchRequest) ([]*Observation, int, error) {
	if _, err := searchQuery(req); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Observation
	for _, o := range m.rows {
		if !o.Voided && matches(o, req.Params) {
			cp := *o
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

func (m *mockRepo) LastNCandidates(_ context.Context, filters url.Values) ([]LastNRow, error) {
	if _, err := lastNQuery(filters); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LastNRow
	for _, o := range m.rows {
		if o.Voided || !matches(o, filters) {
			continue
		}
		cp := *o
		row := LastNRow{Observation: &cp}
		if o.EncounterID != nil {
			if start, ok := m.encounterStarts[*o.EncounterID]; ok {
				row.EncounterStart = &start
			}
		}
		out = append(out, row)
	}
	return out, nil
}

type fixture struct {
	svc  *Service
	repo *mockRepo
	ids  map[string]string
}

// newFixture stores heart rate (8867-4) and blood pressure (85354-9)
// readings for two patients across three encounters of the first.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockRepo()
	f := &fixture{svc: NewService(repo, nil, nil), repo: repo, ids: map[string]string{}}

	p1, p2 := uuid.NewString(), uuid.NewString()
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()
	repo.encounterStarts[e1] = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	repo.encounterStarts[e2] = time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	repo.encounterStarts[e3] = time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)

	add := func(name, patient, code, effective string, enc *uuid.UUID) {
		res := sampleObservation(patient, code, effective, 70)
		if enc != nil {
			res["encounter"] = map[string]interface{}{"reference": "Encounter/" + enc.String()}
		}
		created, err := f.svc.Create(context.Background(), res)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		f.ids[name] = created.ResourceID()
	}
	add("hr1", p1, "8867-4", "2024-03-01T09:00:00Z", &e1)
	add("hr2", p1, "8867-4", "2024-03-02T09:00:00Z", &e2)
	add("hr3", p1, "8867-4", "2024-03-03T09:00:00Z", &e3)
	add("hr3-dup", p1, "8867-4", "2024-03-03T09:00:00Z", &e3)
	add("bp1", p1, "85354-9", "2024-03-01T09:05:00Z", &e1)
	add("p2-hr", p2, "8867-4", "2024-02-01T09:00:00Z", nil)
	f.ids["p1"], f.ids["p2"] = p1, p2
	return f
}

func (f *fixture) names(t *testing.T, results []fhir.DomainResource) []string {
	t.Helper()
	byID := map[string]string{}
	for name, id := range f.ids {
		byID[id] = name
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = byID[r.ResourceID()]
	}
	return out
}

func TestService_LastN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.LastN(ctx, fhir.LastNParams{Max: 1, Filters: url.Values{"patient": {"Patient/" + f.ids["p1"]}}}, false)
	if err != nil {
		t.Fatal(err)
	}
	got := f.names(t, results)
	// 85354-9 sorts before 8867-4; the two readings at the latest instant are both kept.
	if len(got) != 3 || got[0] != "bp1" {
		t.Fatalf("unexpected $lastn result %v", got)
	}
	for _, name := range got[1:] {
		if name != "hr3" && name != "hr3-dup" {
			t.Errorf("unexpected heart rate %s in %v", name, got)
		}
	}

	results, err = f.svc.LastN(ctx, fhir.LastNParams{Max: 2, Filters: url.Values{"code": {"8867-4"}}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Errorf("expected 3 readings for p1 and 1 for p2, got %v", f.names(t, results))
	}
}

func TestService_LastNEncounters(t *testing.T) {
	f := newFixture(t)
	results, err := f.svc.LastN(context.Background(), fhir.LastNParams{
		Max:     2,
		Filters: url.Values{"subject": {f.ids["p1"]}},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	got := f.names(t, results)
	if len(got) != 3 || got[2] != "hr2" {
		t.Fatalf("expected the observations of the two latest encounters, got %v", got)
	}
	for _, name := range got {
		if name == "hr1" || name == "bp1" {
			t.Errorf("observation %s of the oldest encounter was kept", name)
		}
	}
}

func TestService_LastNInvalidFilter(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LastN(context.Background(), fhir.LastNParams{Max: 1, Filters: url.Values{"patient": {"Encounter/1"}}}, false)
	if !errors.Is(err, fhir.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestService_DeleteExcludesFromLastN(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Delete(ctx, f.ids["p2-hr"]); err != nil {
		t.Fatal(err)
	}
	results, err := f.svc.LastN(ctx, fhir.LastNParams{Max: 1, Filters: url.Values{"patient": {f.ids["p2"]}}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after delete, got %v", f.names(t, results))
	}
}
