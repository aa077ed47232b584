package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Patient"

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

// Patient maps to the patient table. Only the first identifier, name and
// address of a FHIR Patient are kept.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	FHIRID           string     `db:"fhir_id" json:"fhir_id"`
	IdentifierSystem *string    `db:"identifier_system" json:"identifier_system,omitempty"`
	IdentifierValue  *string    `db:"identifier_value" json:"identifier_value,omitempty"`
	FamilyName       *string    `db:"family_name" json:"family_name,omitempty"`
	GivenName        *string    `db:"given_name" json:"given_name,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Deceased         bool       `db:"deceased" json:"deceased"`
	DeceasedDatetime *time.Time `db:"deceased_datetime" json:"deceased_datetime,omitempty"`
	City             *string    `db:"city" json:"city,omitempty"`
	State            *string    `db:"state" json:"state,omitempty"`
	Country          *string    `db:"country" json:"country,omitempty"`
	PostalCode       *string    `db:"postal_code" json:"postal_code,omitempty"`
	Active           bool       `db:"active" json:"active"`
	VersionID        int        `db:"version_id" json:"version_id"`
	Voided           bool       `db:"voided" json:"voided"`
	DateVoided       *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) ResourceID() string     { return p.FHIRID }
func (p *Patient) GetVersionID() int      { return p.VersionID }
func (p *Patient) LastUpdated() time.Time { return p.UpdatedAt }

func (p *Patient) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, p.FHIRID, p.VersionID, p.UpdatedAt)
	result["active"] = p.Active

	if p.IdentifierValue != nil {
		result["identifier"] = []fhir.Identifier{{
			Use:    "usual",
			System: strVal(p.IdentifierSystem),
			Value:  *p.IdentifierValue,
		}}
	}

	name := fhir.HumanName{Use: "official", Family: strVal(p.FamilyName)}
	if p.GivenName != nil {
		name.Given = strings.Fields(*p.GivenName)
	}
	if name.Family != "" || len(name.Given) > 0 {
		result["name"] = []fhir.HumanName{name}
	}

	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	if p.BirthDate != nil {
		result["birthDate"] = fhir.FormatDate(*p.BirthDate)
	}
	if p.DeceasedDatetime != nil {
		result["deceasedDateTime"] = p.DeceasedDatetime.UTC().Format(time.RFC3339)
	} else if p.Deceased {
		result["deceasedBoolean"] = true
	}

	if p.City != nil || p.State != nil || p.Country != nil || p.PostalCode != nil {
		result["address"] = []fhir.Address{{
			City:       strVal(p.City),
			State:      strVal(p.State),
			Country:    strVal(p.Country),
			PostalCode: strVal(p.PostalCode),
		}}
	}
	return result
}

type patientResource struct {
	Identifier       []fhir.Identifier `json:"identifier"`
	Active           *bool             `json:"active"`
	Name             []fhir.HumanName  `json:"name"`
	Gender           string            `json:"gender"`
	BirthDate        string            `json:"birthDate"`
	DeceasedBoolean  *bool             `json:"deceasedBoolean"`
	DeceasedDateTime string            `json:"deceasedDateTime"`
	Address          []fhir.Address    `json:"address"`
}

// FromFHIR translates a Patient resource into a row. A name with a family
// or given part is required.
func FromFHIR(res map[string]interface{}) (*Patient, error) {
	var r patientResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}

	p := &Patient{Active: true}
	if r.Active != nil {
		p.Active = *r.Active
	}

	for _, ident := range r.Identifier {
		if ident.Value != "" {
			p.IdentifierSystem = optional(ident.System)
			p.IdentifierValue = optional(ident.Value)
			break
		}
	}

	for _, n := range r.Name {
		if n.Family == "" && len(n.Given) == 0 {
			continue
		}
		p.FamilyName = optional(n.Family)
		p.GivenName = optional(strings.Join(n.Given, " "))
		break
	}
	if p.FamilyName == nil && p.GivenName == nil {
		return nil, fhir.Invalidf("Patient.name with a family or given part is required")
	}

	if r.Gender != "" {
		if !validGenders[r.Gender] {
			return nil, fhir.Invalidf("invalid Patient.gender %q", r.Gender)
		}
		p.Gender = optional(r.Gender)
	}

	var err error
	if p.BirthDate, err = fhir.ParseOptionalDateTime("Patient.birthDate", r.BirthDate); err != nil {
		return nil, err
	}
	if p.DeceasedDatetime, err = fhir.ParseOptionalDateTime("Patient.deceasedDateTime", r.DeceasedDateTime); err != nil {
		return nil, err
	}
	if r.DeceasedBoolean != nil && r.DeceasedDateTime != "" {
		return nil, fhir.Invalidf("only one of Patient.deceasedBoolean and Patient.deceasedDateTime may be set")
	}
	p.Deceased = p.DeceasedDatetime != nil || (r.DeceasedBoolean != nil && *r.DeceasedBoolean)

	if len(r.Address) > 0 {
		a := r.Address[0]
		p.City = optional(a.City)
		p.State = optional(a.State)
		p.Country = optional(a.Country)
		p.PostalCode = optional(a.PostalCode)
	}
	return p, nil
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
