package patient

import (
	"net/url"
	"strings"
	"testing"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func TestSearchQuery(t *testing.T) {
	req := &fhir.SearchRequest{
		ResourceType: ResourceType,
		Params: url.Values{
			"family":    {"cha"},
			"gender":    {"male"},
			"birthdate": {"ge1970-01-01"},
		},
		Sort:  "-birthdate",
		Count: 10,
	}
	q, err := searchQuery(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := q.DataSQL()
	for _, want := range []string{"FROM patient", "voided = false", "family_name", "gender", "birth_date >=", "ORDER BY birth_date DESC"} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in %s", want, sql)
		}
	}
	if len(q.CountArgs()) != 3 {
		t.Errorf("expected 3 args, got %v", q.CountArgs())
	}
}

func TestSearchQuery_DefaultOrder(t *testing.T) {
	q, err := searchQuery(&fhir.SearchRequest{Params: url.Values{}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(q.DataSQL(), "ORDER BY "+defaultOrder) {
		t.Errorf("expected default order, got %s", q.DataSQL())
	}
}

func TestSearchQuery_Errors(t *testing.T) {
	tests := []*fhir.SearchRequest{
		{Params: url.Values{"shoe-size": {"42"}}},
		{Params: url.Values{}, Sort: "shoe-size"},
		{Params: url.Values{"name:fuzzy": {"x"}}},
		{Params: url.Values{"birthdate": {"yesterday"}}},
		{Params: url.Values{"general-practitioner.name": {"x"}}},
	}
	for _, req := range tests {
		if _, err := searchQuery(req); err == nil {
			t.Errorf("expected error for %v sort=%q", req.Params, req.Sort)
		}
	}
}
