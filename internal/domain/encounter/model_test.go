package encounter

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func sampleEncounter(patientID string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Encounter",
		"status":       "finished",
		"class":        map[string]interface{}{"system": classSystem, "code": "AMB"},
		"type": []interface{}{map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"system": "http://snomed.info/sct", "code": "185349003", "display": "Encounter for check up"}},
		}},
		"subject": map[string]interface{}{"reference": "Patient/" + patientID},
		"period":  map[string]interface{}{"start": "2024-03-01T09:00:00Z", "end": "2024-03-01T09:30:00Z"},
	}
}

func TestFromFHIR(t *testing.T) {
	patientID, practitionerID, locationID := uuid.New(), uuid.New(), uuid.New()
	res := sampleEncounter(patientID.String())
	res["participant"] = []interface{}{map[string]interface{}{
		"individual": map[string]interface{}{"reference": "Practitioner/" + practitionerID.String()},
	}}
	res["location"] = []interface{}{map[string]interface{}{
		"location": map[string]interface{}{"reference": "Location/" + locationID.String()},
	}}

	e, err := FromFHIR(res)
	if err != nil {
		t.Fatal(err)
	}
	if e.PatientID != patientID || e.PractitionerID == nil || *e.PractitionerID != practitionerID {
		t.Errorf("unexpected references %+v", e)
	}
	if e.LocationID == nil || *e.LocationID != locationID {
		t.Errorf("unexpected location %v", e.LocationID)
	}
	if strVal(e.TypeCode) != "185349003" || e.ClassCode != "AMB" {
		t.Errorf("unexpected codes %+v", e)
	}
	if !e.PeriodStart.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected period start %v", e.PeriodStart)
	}

	out := e.ToFHIR()
	if out["status"] != "finished" {
		t.Errorf("unexpected status %v", out["status"])
	}
	if ref := out["subject"].(*fhir.Reference); ref.Reference != "Patient/"+patientID.String() {
		t.Errorf("unexpected subject %v", ref)
	}
	if parts := out["participant"].([]participant); len(parts) != 1 || parts[0].Individual.Reference != "Practitioner/"+practitionerID.String() {
		t.Errorf("unexpected participant %v", parts)
	}
	if _, ok := out["partOf"]; ok {
		t.Error("expected no partOf")
	}
}

func TestFromFHIR_DateOnlyPeriod(t *testing.T) {
	res := sampleEncounter(uuid.NewString())
	res["period"] = map[string]interface{}{"start": "2024-03-01"}
	e, err := FromFHIR(res)
	if err != nil {
		t.Fatal(err)
	}
	if e.PeriodStart == nil || e.PeriodEnd != nil {
		t.Errorf("unexpected period %v %v", e.PeriodStart, e.PeriodEnd)
	}
}

func TestFromFHIR_Invalid(t *testing.T) {
	pid := uuid.NewString()
	noStatus := sampleEncounter(pid)
	delete(noStatus, "status")
	badStatus := sampleEncounter(pid)
	badStatus["status"] = "done"
	noClass := sampleEncounter(pid)
	delete(noClass, "class")
	noSubject := sampleEncounter(pid)
	delete(noSubject, "subject")
	groupSubject := sampleEncounter(pid)
	groupSubject["subject"] = map[string]interface{}{"reference": "Group/" + pid}
	backwards := sampleEncounter(pid)
	backwards["period"] = map[string]interface{}{"start": "2024-03-02", "end": "2024-03-01"}
	badDate := sampleEncounter(pid)
	badDate["period"] = map[string]interface{}{"start": "March 1st"}

	tests := map[string]map[string]interface{}{
		"no status":      noStatus,
		"bad status":     badStatus,
		"no class":       noClass,
		"no subject":     noSubject,
		"group subject":  groupSubject,
		"period reverse": backwards,
		"bad date":       badDate,
	}
	for name, res := range tests {
		if _, err := FromFHIR(res); !errors.Is(err, fhir.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}
