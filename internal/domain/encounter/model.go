package encounter

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Encounter"

const classSystem = "http://terminology.hl7.org/CodeSystem/v3-ActCode"

var validStatuses = map[string]bool{
	"planned": true, "arrived": true, "triaged": true, "in-progress": true, "onleave": true,
	"finished": true, "cancelled": true, "entered-in-error": true, "unknown": true,
}

// Encounter maps to the encounter table. A visit is an Encounter that other
// encounters point to through PartOfID. One participant and one location are
// kept.
type Encounter struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	FHIRID         string     `db:"fhir_id" json:"fhir_id"`
	Status         string     `db:"status" json:"status"`
	ClassCode      string     `db:"class_code" json:"class_code"`
	TypeSystem     *string    `db:"type_system" json:"type_system,omitempty"`
	TypeCode       *string    `db:"type_code" json:"type_code,omitempty"`
	TypeDisplay    *string    `db:"type_display" json:"type_display,omitempty"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	LocationID     *uuid.UUID `db:"location_id" json:"location_id,omitempty"`
	PractitionerID *uuid.UUID `db:"practitioner_id" json:"practitioner_id,omitempty"`
	PeriodStart    *time.Time `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd      *time.Time `db:"period_end" json:"period_end,omitempty"`
	PartOfID       *uuid.UUID `db:"part_of_id" json:"part_of_id,omitempty"`
	VersionID      int        `db:"version_id" json:"version_id"`
	Voided         bool       `db:"voided" json:"voided"`
	DateVoided     *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (e *Encounter) ResourceID() string     { return e.FHIRID }
func (e *Encounter) GetVersionID() int      { return e.VersionID }
func (e *Encounter) LastUpdated() time.Time { return e.UpdatedAt }

func (e *Encounter) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, e.FHIRID, e.VersionID, e.UpdatedAt)
	result["status"] = e.Status
	result["class"] = fhir.Coding{System: classSystem, Code: e.ClassCode}
	if e.TypeCode != nil {
		result["type"] = []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: strVal(e.TypeSystem), Code: *e.TypeCode, Display: strVal(e.TypeDisplay)}},
		}}
	}
	result["subject"] = fhir.UUIDReference("Patient", &e.PatientID)
	if ref := fhir.UUIDReference("Practitioner", e.PractitionerID); ref != nil {
		result["participant"] = []participant{{Individual: ref}}
	}
	if ref := fhir.UUIDReference("Location", e.LocationID); ref != nil {
		result["location"] = []encounterLocation{{Location: ref}}
	}
	if e.PeriodStart != nil || e.PeriodEnd != nil {
		result["period"] = fhir.Period{Start: e.PeriodStart, End: e.PeriodEnd}
	}
	if ref := fhir.UUIDReference(ResourceType, e.PartOfID); ref != nil {
		result["partOf"] = ref
	}
	return result
}

type participant struct {
	Individual *fhir.Reference `json:"individual,omitempty"`
}

type encounterLocation struct {
	Location *fhir.Reference `json:"location,omitempty"`
}

type period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type encounterResource struct {
	Status      string                 `json:"status"`
	Class       *fhir.Coding           `json:"class"`
	Type        []fhir.CodeableConcept `json:"type"`
	Subject     *fhir.Reference        `json:"subject"`
	Participant []participant          `json:"participant"`
	Location    []encounterLocation    `json:"location"`
	Period      *period                `json:"period"`
	PartOf      *fhir.Reference        `json:"partOf"`
}

// FromFHIR translates an Encounter. status, class and a Patient subject are
// required.
func FromFHIR(res map[string]interface{}) (*Encounter, error) {
	var r encounterResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if !validStatuses[r.Status] {
		return nil, fhir.Invalidf("invalid Encounter.status %q", r.Status)
	}
	if r.Class == nil || r.Class.Code == "" {
		return nil, fhir.Invalidf("Encounter.class is required")
	}
	e := &Encounter{Status: r.Status, ClassCode: r.Class.Code}

	if len(r.Type) > 0 {
		c := r.Type[0].FirstCoding()
		e.TypeSystem = optional(c.System)
		e.TypeCode = optional(c.Code)
		e.TypeDisplay = optional(c.Display)
	}

	subject, err := fhir.ReferenceUUID(r.Subject, "Patient")
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, fhir.Invalidf("Encounter.subject is required")
	}
	e.PatientID = *subject

	for _, p := range r.Participant {
		if e.PractitionerID, err = fhir.ReferenceUUID(p.Individual, "Practitioner"); err != nil {
			return nil, err
		}
		if e.PractitionerID != nil {
			break
		}
	}
	for _, l := range r.Location {
		if e.LocationID, err = fhir.ReferenceUUID(l.Location, "Location"); err != nil {
			return nil, err
		}
		if e.LocationID != nil {
			break
		}
	}
	if e.PartOfID, err = fhir.ReferenceUUID(r.PartOf, ResourceType); err != nil {
		return nil, err
	}

	if r.Period != nil {
		if e.PeriodStart, err = fhir.ParseOptionalDateTime("Encounter.period.start", r.Period.Start); err != nil {
			return nil, err
		}
		if e.PeriodEnd, err = fhir.ParseOptionalDateTime("Encounter.period.end", r.Period.End); err != nil {
			return nil, err
		}
		if e.PeriodStart != nil && e.PeriodEnd != nil && e.PeriodEnd.Before(*e.PeriodStart) {
			return nil, fhir.Invalidf("Encounter.period.end is before period.start")
		}
	}
	return e, nil
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
