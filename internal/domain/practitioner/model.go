package practitioner

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Practitioner"

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

// Practitioner maps to the practitioner table.
type Practitioner struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	FHIRID           string     `db:"fhir_id" json:"fhir_id"`
	IdentifierSystem *string    `db:"identifier_system" json:"identifier_system,omitempty"`
	IdentifierValue  *string    `db:"identifier_value" json:"identifier_value,omitempty"`
	FamilyName       *string    `db:"family_name" json:"family_name,omitempty"`
	GivenName        *string    `db:"given_name" json:"given_name,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	Active           bool       `db:"active" json:"active"`
	VersionID        int        `db:"version_id" json:"version_id"`
	Voided           bool       `db:"voided" json:"voided"`
	DateVoided       *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Practitioner) ResourceID() string     { return p.FHIRID }
func (p *Practitioner) GetVersionID() int      { return p.VersionID }
func (p *Practitioner) LastUpdated() time.Time { return p.UpdatedAt }

func (p *Practitioner) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, p.FHIRID, p.VersionID, p.UpdatedAt)
	result["active"] = p.Active
	if p.IdentifierValue != nil {
		result["identifier"] = []fhir.Identifier{{System: strVal(p.IdentifierSystem), Value: *p.IdentifierValue}}
	}
	name := fhir.HumanName{Family: strVal(p.FamilyName)}
	if p.GivenName != nil {
		name.Given = strings.Fields(*p.GivenName)
	}
	if name.Family != "" || len(name.Given) > 0 {
		result["name"] = []fhir.HumanName{name}
	}
	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	return result
}

type practitionerResource struct {
	Identifier []fhir.Identifier `json:"identifier"`
	Active     *bool             `json:"active"`
	Name       []fhir.HumanName  `json:"name"`
	Gender     string            `json:"gender"`
}

func FromFHIR(res map[string]interface{}) (*Practitioner, error) {
	var r practitionerResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}

	p := &Practitioner{Active: true}
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
		if n.Family != "" || len(n.Given) > 0 {
			p.FamilyName = optional(n.Family)
			p.GivenName = optional(strings.Join(n.Given, " "))
			break
		}
	}
	if p.FamilyName == nil && p.GivenName == nil {
		return nil, fhir.Invalidf("Practitioner.name with a family or given part is required")
	}
	if r.Gender != "" {
		if !validGenders[r.Gender] {
			return nil, fhir.Invalidf("invalid Practitioner.gender %q", r.Gender)
		}
		p.Gender = optional(r.Gender)
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
