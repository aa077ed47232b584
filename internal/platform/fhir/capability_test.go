package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCapabilityBuilder_Build(t *testing.T) {
	b := NewCapabilityBuilder("http://localhost:8000/fhir", "0.1.0")
	b.AddResource("Patient", []string{"read", "search-type"}, map[string]SearchParamConfig{
		"name":      {Type: SearchParamString, Column: "family_name"},
		"birthdate": {Type: SearchParamDate, Column: "birth_date"},
	})

	cs := b.Build()
	if cs["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", cs["resourceType"])
	}
	if cs["fhirVersion"] != "4.0.1" {
		t.Errorf("expected fhirVersion 4.0.1, got %v", cs["fhirVersion"])
	}
	if cs["kind"] != "instance" {
		t.Errorf("expected kind instance, got %v", cs["kind"])
	}

	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	if len(resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(resources))
	}
	params := resources[0]["searchParam"].([]map[string]string)
	if len(params) != 2 || params[0]["name"] != "birthdate" || params[0]["type"] != "date" {
		t.Errorf("unexpected search params %v", params)
	}
}

func TestCapabilityBuilder_MergesAndSorts(t *testing.T) {
	b := NewCapabilityBuilder("http://localhost:8000/fhir", "0.1.0")
	b.AddResource("Patient", []string{"read"}, nil)
	b.AddResource("Encounter", []string{"read"}, nil)
	b.AddResource("Patient", []string{"read", "delete"}, nil)
	b.AddOperation("Observation", OperationCapability{Name: "lastn", Definition: "http://hl7.org/fhir/OperationDefinition/Observation-lastn"})

	types := b.ResourceTypes()
	want := []string{"Encounter", "Observation", "Patient"}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("expected %v, got %v", want, types)
		}
	}

	rest := b.Build()["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	patient := resources[2]
	codes := patient["interaction"].([]map[string]string)
	if len(codes) != 2 || codes[0]["code"] != "delete" || codes[1]["code"] != "read" {
		t.Errorf("expected merged sorted interactions, got %v", codes)
	}
	if _, ok := resources[1]["operation"]; !ok {
		t.Error("expected Observation to list its operation")
	}
}

func TestCapabilityBuilder_Handler(t *testing.T) {
	b := NewCapabilityBuilder("http://localhost:8000/fhir", "0.1.0")
	b.AddResource("Patient", []string{"read"}, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil)
	rec := httptest.NewRecorder()
	if err := b.Handler()(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != FHIRContentType {
		t.Errorf("expected %q, got %q", FHIRContentType, ct)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", body["resourceType"])
	}
}
