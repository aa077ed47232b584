package condition

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Condition"

const (
	clinicalStatusSystem     = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	verificationStatusSystem = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
)

var (
	clinicalStatuses     = map[string]bool{"active": true, "recurrence": true, "relapse": true, "inactive": true, "remission": true, "resolved": true}
	verificationStatuses = map[string]bool{"unconfirmed": true, "provisional": true, "differential": true, "confirmed": true, "refuted": true, "entered-in-error": true}
)

// Condition maps to the condition table (a problem list or encounter
// diagnosis entry).
type Condition struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	FHIRID             string     `db:"fhir_id" json:"fhir_id"`
	ClinicalStatus     *string    `db:"clinical_status" json:"clinical_status,omitempty"`
	VerificationStatus *string    `db:"verification_status" json:"verification_status,omitempty"`
	CodeSystem         *string    `db:"code_system" json:"code_system,omitempty"`
	CodeValue          string     `db:"code_value" json:"code_value"`
	CodeDisplay        *string    `db:"code_display" json:"code_display,omitempty"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID        *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	OnsetDatetime      *time.Time `db:"onset_datetime" json:"onset_datetime,omitempty"`
	RecordedDate       *time.Time `db:"recorded_date" json:"recorded_date,omitempty"`
	RecorderID         *uuid.UUID `db:"recorder_id" json:"recorder_id,omitempty"`
	Note               *string    `db:"note" json:"note,omitempty"`
	VersionID          int        `db:"version_id" json:"version_id"`
	Voided             bool       `db:"voided" json:"voided"`
	DateVoided         *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func (c *Condition) ResourceID() string     { return c.FHIRID }
func (c *Condition) GetVersionID() int      { return c.VersionID }
func (c *Condition) LastUpdated() time.Time { return c.UpdatedAt }

func (c *Condition) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, c.FHIRID, c.VersionID, c.UpdatedAt)
	if c.ClinicalStatus != nil {
		result["clinicalStatus"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: clinicalStatusSystem, Code: *c.ClinicalStatus}},
		}
	}
	if c.VerificationStatus != nil {
		result["verificationStatus"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: verificationStatusSystem, Code: *c.VerificationStatus}},
		}
	}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: strVal(c.CodeSystem), Code: c.CodeValue, Display: strVal(c.CodeDisplay)}},
	}
	result["subject"] = fhir.UUIDReference("Patient", &c.PatientID)
	if ref := fhir.UUIDReference("Encounter", c.EncounterID); ref != nil {
		result["encounter"] = ref
	}
	if c.OnsetDatetime != nil {
		result["onsetDateTime"] = c.OnsetDatetime.UTC().Format(time.RFC3339)
	}
	if c.RecordedDate != nil {
		result["recordedDate"] = c.RecordedDate.UTC().Format(time.RFC3339)
	}
	if ref := fhir.UUIDReference("Practitioner", c.RecorderID); ref != nil {
		result["recorder"] = ref
	}
	if c.Note != nil {
		result["note"] = []fhir.Annotation{{Text: *c.Note}}
	}
	return result
}

type conditionResource struct {
	ClinicalStatus     *fhir.CodeableConcept `json:"clinicalStatus"`
	VerificationStatus *fhir.CodeableConcept `json:"verificationStatus"`
	Code               *fhir.CodeableConcept `json:"code"`
	Subject            *fhir.Reference       `json:"subject"`
	Encounter          *fhir.Reference       `json:"encounter"`
	OnsetDateTime      string                `json:"onsetDateTime"`
	RecordedDate       string                `json:"recordedDate"`
	Recorder           *fhir.Reference       `json:"recorder"`
	Note               []fhir.Annotation     `json:"note"`
}

// FromFHIR translates a Condition. code and a Patient subject are required.
// An entered-in-error verification status must not carry a clinical status.
func FromFHIR(res map[string]interface{}) (*Condition, error) {
	var r conditionResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if r.Code == nil || r.Code.FirstCoding().Code == "" {
		return nil, fhir.Invalidf("Condition.code with a coding is required")
	}
	code := r.Code.FirstCoding()
	c := &Condition{
		CodeSystem:  optional(code.System),
		CodeValue:   code.Code,
		CodeDisplay: optional(code.Display),
	}
	if c.CodeDisplay == nil {
		c.CodeDisplay = optional(r.Code.Text)
	}

	if r.ClinicalStatus != nil {
		s := r.ClinicalStatus.FirstCoding().Code
		if !clinicalStatuses[s] {
			return nil, fhir.Invalidf("invalid Condition.clinicalStatus %q", s)
		}
		c.ClinicalStatus = optional(s)
	}
	if r.VerificationStatus != nil {
		s := r.VerificationStatus.FirstCoding().Code
		if !verificationStatuses[s] {
			return nil, fhir.Invalidf("invalid Condition.verificationStatus %q", s)
		}
		c.VerificationStatus = optional(s)
	}
	if strVal(c.VerificationStatus) == "entered-in-error" && c.ClinicalStatus != nil {
		return nil, fhir.Invalidf("Condition.clinicalStatus must be absent when verificationStatus is entered-in-error")
	}

	subject, err := fhir.ReferenceUUID(r.Subject, "Patient")
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fhir.Invalidf("Condition.subject is required")
	}
	c.PatientID = *subject
	if c.EncounterID, err = fhir.ReferenceUUID(r.Encounter, "Encounter"); err != nil {
		return nil, err
	}
	if c.RecorderID, err = fhir.ReferenceUUID(r.Recorder, "Practitioner"); err != nil {
		return nil, err
	}
	if c.OnsetDatetime, err = fhir.ParseOptionalDateTime("Condition.onsetDateTime", r.OnsetDateTime); err != nil {
		return nil, err
	}
	if c.RecordedDate, err = fhir.ParseOptionalDateTime("Condition.recordedDate", r.RecordedDate); err != nil {
		return nil, err
	}
	if len(r.Note) > 0 {
		c.Note = optional(r.Note[0].Text)
	}
	return c, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
