package task

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Task"

var (
	validStatuses = map[string]bool{
		"draft": true, "requested": true, "received": true, "accepted": true, "rejected": true, "ready": true,
		"cancelled": true, "in-progress": true, "on-hold": true, "failed": true, "completed": true, "entered-in-error": true,
	}
	validIntents = map[string]bool{
		"unknown": true, "proposal": true, "plan": true, "order": true, "original-order": true,
		"reflex-order": true, "filler-order": true, "instance-order": true, "option": true,
	}
	validPriorities = map[string]bool{"routine": true, "urgent": true, "asap": true, "stat": true}
)

// Task maps to the task table. BasedOn keeps the request reference as
// written since requests are not served here.
type Task struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FHIRID       string     `db:"fhir_id" json:"fhir_id"`
	Status       string     `db:"status" json:"status"`
	Intent       string     `db:"intent" json:"intent"`
	Priority     *string    `db:"priority" json:"priority,omitempty"`
	CodeSystem   *string    `db:"code_system" json:"code_system,omitempty"`
	CodeValue    *string    `db:"code_value" json:"code_value,omitempty"`
	CodeDisplay  *string    `db:"code_display" json:"code_display,omitempty"`
	Description  *string    `db:"description" json:"description,omitempty"`
	ForPatientID *uuid.UUID `db:"for_patient_id" json:"for_patient_id,omitempty"`
	EncounterID  *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	OwnerID      *uuid.UUID `db:"owner_id" json:"owner_id,omitempty"`
	RequesterID  *uuid.UUID `db:"requester_id" json:"requester_id,omitempty"`
	BasedOn      *string    `db:"based_on" json:"based_on,omitempty"`
	AuthoredOn   *time.Time `db:"authored_on" json:"authored_on,omitempty"`
	LastModified *time.Time `db:"last_modified" json:"last_modified,omitempty"`
	VersionID    int        `db:"version_id" json:"version_id"`
	Voided       bool       `db:"voided" json:"voided"`
	DateVoided   *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (t *Task) ResourceID() string     { return t.FHIRID }
func (t *Task) GetVersionID() int      { return t.VersionID }
func (t *Task) LastUpdated() time.Time { return t.UpdatedAt }

func (t *Task) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, t.FHIRID, t.VersionID, t.UpdatedAt)
	result["status"] = t.Status
	result["intent"] = t.Intent
	if t.Priority != nil {
		result["priority"] = *t.Priority
	}
	if t.CodeValue != nil {
		result["code"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: strVal(t.CodeSystem), Code: *t.CodeValue, Display: strVal(t.CodeDisplay)}},
		}
	}
	if t.Description != nil {
		result["description"] = *t.Description
	}
	if ref := fhir.UUIDReference("Patient", t.ForPatientID); ref != nil {
		result["for"] = ref
	}
	if ref := fhir.UUIDReference("Encounter", t.EncounterID); ref != nil {
		result["encounter"] = ref
	}
	if ref := fhir.UUIDReference("Practitioner", t.OwnerID); ref != nil {
		result["owner"] = ref
	}
	if ref := fhir.UUIDReference("Practitioner", t.RequesterID); ref != nil {
		result["requester"] = ref
	}
	if t.BasedOn != nil {
		result["basedOn"] = []fhir.Reference{{Reference: *t.BasedOn}}
	}
	if t.AuthoredOn != nil {
		result["authoredOn"] = t.AuthoredOn.UTC().Format(time.RFC3339)
	}
	if t.LastModified != nil {
		result["lastModified"] = t.LastModified.UTC().Format(time.RFC3339)
	}
	return result
}

type taskResource struct {
	Status       string                `json:"status"`
	Intent       string                `json:"intent"`
	Priority     string                `json:"priority"`
	Code         *fhir.CodeableConcept `json:"code"`
	Description  string                `json:"description"`
	For          *fhir.Reference       `json:"for"`
	Encounter    *fhir.Reference       `json:"encounter"`
	Owner        *fhir.Reference       `json:"owner"`
	Requester    *fhir.Reference       `json:"requester"`
	BasedOn      []fhir.Reference      `json:"basedOn"`
	AuthoredOn   string                `json:"authoredOn"`
	LastModified string                `json:"lastModified"`
}

// FromFHIR translates a Task. status and intent are required. owner and
// requester must be Practitioners.
func FromFHIR(res map[string]interface{}) (*Task, error) {
	var r taskResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if !validStatuses[r.Status] {
		return nil, fhir.Invalidf("invalid Task.status %q", r.Status)
	}
	if !validIntents[r.Intent] {
		return nil, fhir.Invalidf("invalid Task.intent %q", r.Intent)
	}
	t := &Task{Status: r.Status, Intent: r.Intent, Description: optional(r.Description)}
	if r.Priority != "" {
		if !validPriorities[r.Priority] {
			return nil, fhir.Invalidf("invalid Task.priority %q", r.Priority)
		}
		t.Priority = optional(r.Priority)
	}
	if r.Code != nil {
		c := r.Code.FirstCoding()
		t.CodeSystem = optional(c.System)
		t.CodeValue = optional(c.Code)
		t.CodeDisplay = optional(c.Display)
	}

	var err error
	if t.ForPatientID, err = fhir.ReferenceUUID(r.For, "Patient"); err != nil {
		return nil, err
	}
	if t.EncounterID, err = fhir.ReferenceUUID(r.Encounter, "Encounter"); err != nil {
		return nil, err
	}
	if t.OwnerID, err = fhir.ReferenceUUID(r.Owner, "Practitioner"); err != nil {
		return nil, err
	}
	if t.RequesterID, err = fhir.ReferenceUUID(r.Requester, "Practitioner"); err != nil {
		return nil, err
	}
	for _, ref := range r.BasedOn {
		if ref.Reference != "" {
			t.BasedOn = optional(ref.Reference)
			break
		}
	}
	if t.AuthoredOn, err = fhir.ParseOptionalDateTime("Task.authoredOn", r.AuthoredOn); err != nil {
		return nil, err
	}
	if t.LastModified, err = fhir.ParseOptionalDateTime("Task.lastModified", r.LastModified); err != nil {
		return nil, err
	}
	return t, nil
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
