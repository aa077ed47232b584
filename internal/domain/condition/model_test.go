package condition

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

func sampleCondition(patientID string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Condition",
		"clinicalStatus": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"system": clinicalStatusSystem, "code": "active"}},
		},
		"verificationStatus": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"system": verificationStatusSystem, "code": "confirmed"}},
		},
		"code": map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"system": "http://snomed.info/sct", "code": "44054006", "display": "Diabetes mellitus type 2"}},
		},
		"subject":       map[string]interface{}{"reference": "Patient/" + patientID},
		"onsetDateTime": "2019-06-01",
		"recordedDate":  "2019-06-03T10:00:00Z",
	}
}

func TestFromFHIR(t *testing.T) {
	pid, rid := uuid.New(), uuid.New()
	res := sampleCondition(pid.String())
	res["recorder"] = map[string]interface{}{"reference": "Practitioner/" + rid.String()}

	c, err := FromFHIR(res)
	if err != nil {
		t.Fatal(err)
	}
	if strVal(c.ClinicalStatus) != "active" || strVal(c.VerificationStatus) != "confirmed" {
		t.Errorf("unexpected statuses %+v", c)
	}
	if c.PatientID != pid || c.RecorderID == nil || *c.RecorderID != rid {
		t.Errorf("unexpected references %+v", c)
	}

	out := c.ToFHIR()
	if out["onsetDateTime"] != "2019-06-01T00:00:00Z" {
		t.Errorf("unexpected onset %v", out["onsetDateTime"])
	}
	status := out["clinicalStatus"].(fhir.CodeableConcept)
	if status.FirstCoding().System != clinicalStatusSystem {
		t.Errorf("unexpected clinical status %v", status)
	}
	if ref := out["recorder"].(*fhir.Reference); ref.Reference != "Practitioner/"+rid.String() {
		t.Errorf("unexpected recorder %v", ref)
	}
}

func TestFromFHIR_Invalid(t *testing.T) {
	pid := uuid.NewString()
	noCode := sampleCondition(pid)
	delete(noCode, "code")
	badClinical := sampleCondition(pid)
	badClinical["clinicalStatus"] = map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "cured"}}}
	errorWithStatus := sampleCondition(pid)
	errorWithStatus["verificationStatus"] = map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "entered-in-error"}}}
	noSubject := sampleCondition(pid)
	delete(noSubject, "subject")
	badRecorder := sampleCondition(pid)
	badRecorder["recorder"] = map[string]interface{}{"reference": "Patient/" + pid}

	tests := map[string]map[string]interface{}{
		"no code":              noCode,
		"bad clinical status":  badClinical,
		"error with status":    errorWithStatus,
		"no subject":           noSubject,
		"recorder not a pract": badRecorder,
	}
	for name, res := range tests {
		if _, err := FromFHIR(res); !errors.Is(err, fhir.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}
