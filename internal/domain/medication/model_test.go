package medication

import (
	"errors"
	"testing"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func sampleMedication() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Medication",
		"code": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{
				"system":  "http://www.nlm.nih.gov/research/umls/rxnorm",
				"code":    "308182",
				"display": "Amoxicillin 250 MG Oral Capsule",
			}},
		},
		"status": "active",
		"form": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"code": "385055001", "display": "Tablet"}},
		},
		"ingredient": []interface{}{map[string]interface{}{
			"itemCodeableConcept": map[string]interface{}{"text": "Amoxicillin 250 mg"},
		}},
	}
}

func TestFromFHIR(t *testing.T) {
	m, err := FromFHIR(sampleMedication())
	if err != nil {
		t.Fatal(err)
	}
	if m.CodeValue != "308182" || strVal(m.FormCode) != "385055001" || strVal(m.Ingredient) != "Amoxicillin 250 mg" {
		t.Errorf("unexpected medication %+v", m)
	}

	out := m.ToFHIR()
	if out["status"] != "active" {
		t.Errorf("unexpected status %v", out["status"])
	}
	if form := out["form"].(fhir.CodeableConcept); form.FirstCoding().Code != "385055001" || form.Text != "Tablet" {
		t.Errorf("unexpected form %v", form)
	}
	ings := out["ingredient"].([]ingredient)
	if len(ings) != 1 || ings[0].ItemCodeableConcept.Text != "Amoxicillin 250 mg" {
		t.Errorf("unexpected ingredient %v", ings)
	}
}

func TestFromFHIR_IngredientFallbacks(t *testing.T) {
	res := sampleMedication()
	res["ingredient"] = []interface{}{
		map[string]interface{}{"itemCodeableConcept": map[string]interface{}{}},
		map[string]interface{}{"itemReference": map[string]interface{}{"reference": "Substance/1", "display": "Clavulanate"}},
	}
	m, err := FromFHIR(res)
	if err != nil {
		t.Fatal(err)
	}
	if strVal(m.Ingredient) != "Clavulanate" {
		t.Errorf("unexpected ingredient %q", strVal(m.Ingredient))
	}
}

func TestFromFHIR_Invalid(t *testing.T) {
	noCode := sampleMedication()
	delete(noCode, "code")
	textOnly := sampleMedication()
	textOnly["code"] = map[string]interface{}{"text": "amoxicillin"}
	badStatus := sampleMedication()
	badStatus["status"] = "discontinued"
	badForm := sampleMedication()
	badForm["form"] = "tablet"

	tests := map[string]map[string]interface{}{
		"no code":    noCode,
		"text only":  textOnly,
		"bad status": badStatus,
		"bad form":   badForm,
	}
	for name, res := range tests {
		if _, err := FromFHIR(res); !errors.Is(err, fhir.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}
