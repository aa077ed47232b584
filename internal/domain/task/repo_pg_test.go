package task

import (
	"net/url"
	"strings"
	"testing"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func TestSearchQuery(t *testing.T) {
	req := &fhir.SearchRequest{
		Params: url.Values{
			"status":       {"requested,in-progress"},
			"owner":        {"Practitioner/3f2b9c1e-0000-4000-8000-000000000001"},
			"based-on":     {"ServiceRequest/lab-42"},
			"patient.name": {"smith"},
			"modified":     {"ge2024-01-01"},
		},
	}
	q, err := searchQuery(req)
	if err != nil {
		t.Fatal(err)
	}
	sql := q.DataSQL()
	for _, want := range []string{
		"FROM task",
		"(status = $",
		"owner_id IN (SELECT id FROM practitioner WHERE fhir_id = $",
		"based_on = $",
		"for_patient_id IN (SELECT id FROM patient WHERE 1=1 AND voided = false",
		"last_modified >= $",
		"ORDER BY authored_on DESC NULLS LAST, id ASC",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in %s", want, sql)
		}
	}
}

func TestSearchQuery_Chains(t *testing.T) {
	for _, param := range []string{"subject.family", "requester.name", "encounter.status", "encounter.subject.family"} {
		if _, err := searchQuery(&fhir.SearchRequest{Params: url.Values{param: {"x"}}}); err != nil {
			t.Errorf("%s: %v", param, err)
		}
	}
	for _, params := range []url.Values{
		{"based-on.status": {"active"}},
		{"business-status": {"x"}},
		{"authored-on": {"soon"}},
	} {
		if _, err := searchQuery(&fhir.SearchRequest{Params: params}); err == nil {
			t.Errorf("expected error for %v", params)
		}
	}
}
