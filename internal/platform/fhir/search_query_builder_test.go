package fhir

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

var testPatientParams = WithCommonParams(map[string]SearchParamConfig{
	"name":      {Type: SearchParamString, Columns: []string{"family_name", "given_name"}},
	"family":    {Type: SearchParamString, Column: "family_name"},
	"gender":    {Type: SearchParamToken, Column: "gender"},
	"birthdate": {Type: SearchParamDate, Column: "birth_date"},
	"active":    {Type: SearchParamBoolean, Column: "active"},
})

var testObservationParams = WithCommonParams(map[string]SearchParamConfig{
	"code":    {Type: SearchParamToken, Column: "code", SysColumn: "code_system"},
	"subject": {Type: SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"date":    {Type: SearchParamDate, Column: "effective_datetime"},
})

func TestSearchQuery_ExcludesVoided(t *testing.T) {
	q := NewSearchQuery("patient", "id, fhir_id")
	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM patient WHERE 1=1 AND voided = false" {
		t.Errorf("CountSQL = %q", got)
	}
}

func TestSearchQuery_ApplyParams(t *testing.T) {
	q := NewSearchQuery("patient", "id")
	err := q.ApplyParams(url.Values{
		"family": {"Doe"},
		"gender": {"male,female"},
	}, testPatientParams, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT COUNT(*) FROM patient WHERE 1=1 AND voided = false AND family_name ILIKE $1 AND (gender = $2 OR gender = $3)"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL =\n%s\nwant\n%s", got, want)
	}
	args := q.CountArgs()
	if len(args) != 3 || args[0] != "Doe%" || args[1] != "male" || args[2] != "female" {
		t.Errorf("args = %v", args)
	}
	if q.Idx() != 4 {
		t.Errorf("Idx = %d", q.Idx())
	}
}

func TestSearchQuery_RepeatedParamIsAnd(t *testing.T) {
	q := NewSearchQuery("observation", "id")
	err := q.ApplyParams(url.Values{"date": {"ge2024-01-01", "lt2024-02-01"}}, testObservationParams, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := q.CountSQL()
	if !strings.Contains(sql, "effective_datetime >= $1 AND effective_datetime < $2") {
		t.Errorf("expected ANDed date clauses, got %s", sql)
	}
}

func TestSearchQuery_Modifiers(t *testing.T) {
	q := NewSearchQuery("patient", "id")
	err := q.ApplyParams(url.Values{
		"birthdate:missing": {"true"},
		"gender:not":        {"male"},
		"name:exact":        {"Jane"},
	}, testPatientParams, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := q.CountSQL()
	for _, want := range []string{
		"birth_date IS NULL",
		"(gender IS NULL OR NOT gender = $1)",
		"(family_name = $2 OR given_name = $2)",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing %q in %s", want, sql)
		}
	}
}

func TestSearchQuery_ReferenceTypeModifier(t *testing.T) {
	q := NewSearchQuery("observation", "id")
	if err := q.ApplyParams(url.Values{"subject:Patient": {"p1"}}, testObservationParams, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.CountArgs()[0] != "p1" {
		t.Errorf("args = %v", q.CountArgs())
	}
}

func TestSearchQuery_Errors(t *testing.T) {
	tests := []url.Values{
		{"unknown": {"x"}},
		{"gender:contains": {"ma"}},
		{"birthdate:missing": {"maybe"}},
		{"birthdate": {"not-a-date"}},
		{"active": {"yes"}},
		{"gender": {"male,"}},
		{"subject:Location": {"l1"}},
		{"general-practitioner.name": {"x"}},
	}
	for _, params := range tests {
		configs := testPatientParams
		if _, ok := params["subject:Location"]; ok {
			configs = testObservationParams
		}
		q := NewSearchQuery("patient", "id")
		if err := q.ApplyParams(params, configs, nil); !errors.Is(err, ErrInvalid) {
			t.Errorf("%v: expected ErrInvalid, got %v", params, err)
		}
	}
}

func TestSearchQuery_CommonParams(t *testing.T) {
	q := NewSearchQuery("patient", "id")
	if err := q.ApplyParams(url.Values{"_id": {"a,b"}, "_lastUpdated": {"gt2024"}}, testPatientParams, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := q.CountSQL()
	if !strings.Contains(sql, "(fhir_id = $1 OR fhir_id = $2)") || !strings.Contains(sql, "updated_at >= $3") {
		t.Errorf("unexpected SQL %s", sql)
	}
}

func TestSearchQuery_DataSQL(t *testing.T) {
	q := NewSearchQuery("patient", "id, fhir_id")
	_ = q.ApplyParams(url.Values{"gender": {"male"}}, testPatientParams, nil)
	if err := q.ApplySort("-birthdate,family", "updated_at DESC", testPatientParams); err != nil {
		t.Fatalf("ApplySort: %v", err)
	}

	want := "SELECT id, fhir_id FROM patient WHERE 1=1 AND voided = false AND gender = $1 " +
		"ORDER BY birth_date DESC NULLS LAST, family_name ASC NULLS LAST, id ASC LIMIT $2 OFFSET $3"
	if got := q.DataSQL(); got != want {
		t.Errorf("DataSQL =\n%s\nwant\n%s", got, want)
	}
	args := q.DataArgs(10, 20)
	if len(args) != 3 || args[1] != 10 || args[2] != 20 {
		t.Errorf("DataArgs = %v", args)
	}
}

func TestSearchQuery_ApplySort(t *testing.T) {
	q := NewSearchQuery("patient", "id")
	if err := q.ApplySort("", "updated_at DESC", testPatientParams); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(q.DataSQL(), "ORDER BY updated_at DESC") {
		t.Errorf("expected default order, got %s", q.DataSQL())
	}

	if err := q.ApplySort("shoe-size", "", testPatientParams); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unknown sort, got %v", err)
	}
	if err := q.ApplySort("subject", "", testObservationParams); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for reference sort, got %v", err)
	}
}
