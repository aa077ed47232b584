package observation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Observation"

const categorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"

var validStatuses = map[string]bool{
	"registered": true, "preliminary": true, "final": true, "amended": true,
	"corrected": true, "cancelled": true, "entered-in-error": true, "unknown": true,
}

// Observation maps to the observation table. A single value of type
// Quantity, string or CodeableConcept is kept.
type Observation struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	FHIRID            string     `db:"fhir_id" json:"fhir_id"`
	Status            string     `db:"status" json:"status"`
	CategoryCode      *string    `db:"category_code" json:"category_code,omitempty"`
	CodeSystem        *string    `db:"code_system" json:"code_system,omitempty"`
	CodeValue         string     `db:"code_value" json:"code_value"`
	CodeDisplay       *string    `db:"code_display" json:"code_display,omitempty"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID       *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	EffectiveDatetime *time.Time `db:"effective_datetime" json:"effective_datetime,omitempty"`
	ValueQuantity     *float64   `db:"value_quantity" json:"value_quantity,omitempty"`
	ValueUnit         *string    `db:"value_unit" json:"value_unit,omitempty"`
	ValueString       *string    `db:"value_string" json:"value_string,omitempty"`
	ValueCode         *string    `db:"value_code" json:"value_code,omitempty"`
	ValueCodeSystem   *string    `db:"value_code_system" json:"value_code_system,omitempty"`
	Interpretation    *string    `db:"interpretation" json:"interpretation,omitempty"`
	Note              *string    `db:"note" json:"note,omitempty"`
	VersionID         int        `db:"version_id" json:"version_id"`
	Voided            bool       `db:"voided" json:"voided"`
	DateVoided        *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (o *Observation) ResourceID() string     { return o.FHIRID }
func (o *Observation) GetVersionID() int      { return o.VersionID }
func (o *Observation) LastUpdated() time.Time { return o.UpdatedAt }

// CodeKey is the "system|code" key $lastn groups by.
func (o *Observation) CodeKey() string {
	return strVal(o.CodeSystem) + "|" + o.CodeValue
}

func (o *Observation) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, o.FHIRID, o.VersionID, o.UpdatedAt)
	result["status"] = o.Status
	if o.CategoryCode != nil {
		result["category"] = []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: categorySystem, Code: *o.CategoryCode}},
		}}
	}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: strVal(o.CodeSystem), Code: o.CodeValue, Display: strVal(o.CodeDisplay)}},
	}
	result["subject"] = fhir.UUIDReference("Patient", &o.PatientID)
	if ref := fhir.UUIDReference("Encounter", o.EncounterID); ref != nil {
		result["encounter"] = ref
	}
	if o.EffectiveDatetime != nil {
		result["effectiveDateTime"] = o.EffectiveDatetime.UTC().Format(time.RFC3339)
	}
	switch {
	case o.ValueQuantity != nil:
		result["valueQuantity"] = fhir.Quantity{
			Value:  o.ValueQuantity,
			Unit:   strVal(o.ValueUnit),
			System: "http://unitsofmeasure.org",
			Code:   strVal(o.ValueUnit),
		}
	case o.ValueString != nil:
		result["valueString"] = *o.ValueString
	case o.ValueCode != nil:
		result["valueCodeableConcept"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: strVal(o.ValueCodeSystem), Code: *o.ValueCode}},
		}
	}
	if o.Interpretation != nil {
		result["interpretation"] = []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System: "http://terminology.hl7.org/CodeSystem/v3-ObservationInterpretation",
				Code:   *o.Interpretation,
			}},
		}}
	}
	if o.Note != nil {
		result["note"] = []fhir.Annotation{{Text: *o.Note}}
	}
	return result
}

type observationResource struct {
	Status               string                 `json:"status"`
	Category             []fhir.CodeableConcept `json:"category"`
	Code                 *fhir.CodeableConcept  `json:"code"`
	Subject              *fhir.Reference        `json:"subject"`
	Encounter            *fhir.Reference        `json:"encounter"`
	EffectiveDateTime    string                 `json:"effectiveDateTime"`
	ValueQuantity        *fhir.Quantity         `json:"valueQuantity"`
	ValueString          *string                `json:"valueString"`
	ValueCodeableConcept *fhir.CodeableConcept  `json:"valueCodeableConcept"`
	Interpretation       []fhir.CodeableConcept `json:"interpretation"`
	Note                 []fhir.Annotation      `json:"note"`
}

// FromFHIR translates an Observation. status, code and a Patient subject
// are required and at most one value[x] may be given.
func FromFHIR(res map[string]interface{}) (*Observation, error) {
	var r observationResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if !validStatuses[r.Status] {
		return nil, fhir.Invalidf("invalid Observation.status %q", r.Status)
	}
	if r.Code == nil || r.Code.FirstCoding().Code == "" {
		return nil, fhir.Invalidf("Observation.code with a coding is required")
	}
	code := r.Code.FirstCoding()
	o := &Observation{
		Status:      r.Status,
		CodeSystem:  optional(code.System),
		CodeValue:   code.Code,
		CodeDisplay: optional(code.Display),
	}
	if o.CodeDisplay == nil {
		o.CodeDisplay = optional(r.Code.Text)
	}
	if len(r.Category) > 0 {
		o.CategoryCode = optional(r.Category[0].FirstCoding().Code)
	}

	subject, err := fhir.ReferenceUUID(r.Subject, "Patient")
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fhir.Invalidf("Observation.subject is required")
	}
	o.PatientID = *subject
	if o.EncounterID, err = fhir.ReferenceUUID(r.Encounter, "Encounter"); err != nil {
		return nil, err
	}
	if o.EffectiveDatetime, err = fhir.ParseOptionalDateTime("Observation.effectiveDateTime", r.EffectiveDateTime); err != nil {
		return nil, err
	}

	values := 0
	if q := r.ValueQuantity; q != nil {
		if q.Value == nil {
			return nil, fhir.Invalidf("Observation.valueQuantity.value is required")
		}
		values++
		o.ValueQuantity = q.Value
		o.ValueUnit = optional(q.Code)
		if o.ValueUnit == nil {
			o.ValueUnit = optional(q.Unit)
		}
	}
	if r.ValueString != nil {
		values++
		o.ValueString = optional(*r.ValueString)
	}
	if cc := r.ValueCodeableConcept; cc != nil {
		values++
		c := cc.FirstCoding()
		o.ValueCode = optional(c.Code)
		o.ValueCodeSystem = optional(c.System)
	}
	if values > 1 {
		return nil, fhir.Invalidf("only one Observation.value[x] may be set")
	}

	if len(r.Interpretation) > 0 {
		o.Interpretation = optional(r.Interpretation[0].FirstCoding().Code)
	}
	if len(r.Note) > 0 {
		o.Note = optional(r.Note[0].Text)
	}
	return o, nil
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
