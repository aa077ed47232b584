package medication

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Medication"

var validStatuses = map[string]bool{"active": true, "inactive": true, "entered-in-error": true}

// Medication maps to the medication table, a drug catalogue entry. The
// ingredient column holds the display of the first ingredient, typically
// the strength ("Amoxicillin 250 mg").
type Medication struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FHIRID      string     `db:"fhir_id" json:"fhir_id"`
	CodeSystem  *string    `db:"code_system" json:"code_system,omitempty"`
	CodeValue   string     `db:"code_value" json:"code_value"`
	CodeDisplay *string    `db:"code_display" json:"code_display,omitempty"`
	Status      *string    `db:"status" json:"status,omitempty"`
	FormCode    *string    `db:"form_code" json:"form_code,omitempty"`
	FormDisplay *string    `db:"form_display" json:"form_display,omitempty"`
	Ingredient  *string    `db:"ingredient" json:"ingredient,omitempty"`
	VersionID   int        `db:"version_id" json:"version_id"`
	Voided      bool       `db:"voided" json:"voided"`
	DateVoided  *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (m *Medication) ResourceID() string     { return m.FHIRID }
func (m *Medication) GetVersionID() int      { return m.VersionID }
func (m *Medication) LastUpdated() time.Time { return m.UpdatedAt }

func (m *Medication) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, m.FHIRID, m.VersionID, m.UpdatedAt)
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: strVal(m.CodeSystem), Code: m.CodeValue, Display: strVal(m.CodeDisplay)}},
	}
	if m.Status != nil {
		result["status"] = *m.Status
	}
	if m.FormCode != nil || m.FormDisplay != nil {
		form := fhir.CodeableConcept{Text: strVal(m.FormDisplay)}
		if m.FormCode != nil {
			form.Coding = []fhir.Coding{{Code: *m.FormCode, Display: strVal(m.FormDisplay)}}
		}
		result["form"] = form
	}
	if m.Ingredient != nil {
		result["ingredient"] = []ingredient{{ItemCodeableConcept: &fhir.CodeableConcept{Text: *m.Ingredient}}}
	}
	return result
}

type ingredient struct {
	ItemCodeableConcept *fhir.CodeableConcept `json:"itemCodeableConcept,omitempty"`
	ItemReference       *fhir.Reference       `json:"itemReference,omitempty"`
}

type medicationResource struct {
	Code       *fhir.CodeableConcept `json:"code"`
	Status     string                `json:"status"`
	Form       *fhir.CodeableConcept `json:"form"`
	Ingredient []ingredient          `json:"ingredient"`
}

// FromFHIR translates a Medication. A coded code is required.
func FromFHIR(res map[string]interface{}) (*Medication, error) {
	var r medicationResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if r.Code == nil || r.Code.FirstCoding().Code == "" {
		return nil, fhir.Invalidf("Medication.code with a coding is required")
	}
	code := r.Code.FirstCoding()
	m := &Medication{
		CodeSystem:  optional(code.System),
		CodeValue:   code.Code,
		CodeDisplay: optional(code.Display),
	}
	if m.CodeDisplay == nil {
		m.CodeDisplay = optional(r.Code.Text)
	}
	if r.Status != "" {
		if !validStatuses[r.Status] {
			return nil, fhir.Invalidf("invalid Medication.status %q", r.Status)
		}
		m.Status = optional(r.Status)
	}
	if f := r.Form; f != nil {
		c := f.FirstCoding()
		m.FormCode = optional(c.Code)
		m.FormDisplay = optional(c.Display)
		if m.FormDisplay == nil {
			m.FormDisplay = optional(f.Text)
		}
	}
	for _, ing := range r.Ingredient {
		if cc := ing.ItemCodeableConcept; cc != nil {
			text := cc.Text
			if text == "" {
				text = cc.FirstCoding().Display
			}
			if m.Ingredient = optional(text); m.Ingredient != nil {
				break
			}
		}
		if ing.ItemReference != nil && ing.ItemReference.Display != "" {
			m.Ingredient = optional(ing.ItemReference.Display)
			break
		}
	}
	return m, nil
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
