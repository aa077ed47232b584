package fhir

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func testChains() *ChainRegistry {
	locationParams := WithCommonParams(map[string]SearchParamConfig{
		"name":         {Type: SearchParamString, Column: "name"},
		"address-city": {Type: SearchParamString, Column: "city"},
	})
	encounterChains := NewChainRegistry()
	encounterChains.Register("location", ChainTarget{
		ResourceType: "Location", ReferenceColumn: "location_id", TargetTable: "location", Params: locationParams,
	})

	chains := NewChainRegistry()
	chains.Register("subject", ChainTarget{
		ResourceType: "Patient", ReferenceColumn: "patient_id", TargetTable: "patient", Params: testPatientParams,
	})
	chains.Register("performer", ChainTarget{
		ResourceType: "Patient", ReferenceColumn: "performer_patient_id", TargetTable: "patient", Params: testPatientParams,
	})
	chains.Register("performer", ChainTarget{
		ResourceType: "Practitioner", ReferenceColumn: "performer_practitioner_id", TargetTable: "practitioner",
		Params: testPatientParams,
	})
	chains.Register("encounter", ChainTarget{
		ResourceType: "Encounter", ReferenceColumn: "encounter_id", TargetTable: "encounter",
		Params: WithCommonParams(nil), Chains: encounterChains,
	})
	return chains
}

func TestChainRegistry_Resolve(t *testing.T) {
	chains := testChains()

	target, rest, err := chains.Resolve("subject.name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.ResourceType != "Patient" || rest != "name" {
		t.Errorf("got %s %q", target.ResourceType, rest)
	}

	target, rest, err = chains.Resolve("performer:Practitioner.family:exact")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.TargetTable != "practitioner" || rest != "family:exact" {
		t.Errorf("got %s %q", target.TargetTable, rest)
	}
}

func TestChainRegistry_ResolveErrors(t *testing.T) {
	chains := testChains()
	for _, name := range []string{"performer.name", "owner.name", "subject:Location.name", "subject.", ".name"} {
		if _, _, err := chains.Resolve(name); !errors.Is(err, ErrInvalid) {
			t.Errorf("%q: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestChainRegistry_ApplyThroughSearchQuery(t *testing.T) {
	q := NewSearchQuery("observation", "id")
	err := q.ApplyParams(url.Values{
		"code":         {"8480-6"},
		"subject.name": {"Doe"},
	}, testObservationParams, testChains())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT COUNT(*) FROM observation WHERE 1=1 AND voided = false AND code = $1 AND " +
		"patient_id IN (SELECT id FROM patient WHERE 1=1 AND voided = false AND (family_name ILIKE $2 OR given_name ILIKE $2))"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL =\n%s\nwant\n%s", got, want)
	}
	if args := q.CountArgs(); len(args) != 2 || args[1] != "Doe%" {
		t.Errorf("args = %v", args)
	}
	if q.Idx() != 3 {
		t.Errorf("Idx = %d", q.Idx())
	}
}

func TestChainRegistry_TwoLevels(t *testing.T) {
	q := NewSearchQuery("observation", "id")
	err := testChains().Apply(q, "encounter.location.address-city", "Kampala")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := q.CountSQL()
	if !strings.Contains(sql, "encounter_id IN (SELECT id FROM encounter WHERE 1=1 AND voided = false AND "+
		"location_id IN (SELECT id FROM location WHERE 1=1 AND voided = false AND city ILIKE $1))") {
		t.Errorf("unexpected SQL %s", sql)
	}
}

func TestChainRegistry_UnknownTargetParam(t *testing.T) {
	q := NewSearchQuery("observation", "id")
	if err := testChains().Apply(q, "subject.shoe-size", "9"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if err := testChains().Apply(q, "subject.name.given", "x"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for chain through a non-reference, got %v", err)
	}
}
