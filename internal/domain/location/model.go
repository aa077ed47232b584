package location

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emr/fhir2/internal/platform/fhir"
)

const ResourceType = "Location"

var validStatuses = map[string]bool{"active": true, "suspended": true, "inactive": true}

// Location maps to the location table. Locations form a tree through
// ParentID (FHIR partOf).
type Location struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FHIRID      string     `db:"fhir_id" json:"fhir_id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      *string    `db:"status" json:"status,omitempty"`
	City        *string    `db:"city" json:"city,omitempty"`
	State       *string    `db:"state" json:"state,omitempty"`
	Country     *string    `db:"country" json:"country,omitempty"`
	PostalCode  *string    `db:"postal_code" json:"postal_code,omitempty"`
	ParentID    *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`
	VersionID   int        `db:"version_id" json:"version_id"`
	Voided      bool       `db:"voided" json:"voided"`
	DateVoided  *time.Time `db:"date_voided" json:"date_voided,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (l *Location) ResourceID() string     { return l.FHIRID }
func (l *Location) GetVersionID() int      { return l.VersionID }
func (l *Location) LastUpdated() time.Time { return l.UpdatedAt }

func (l *Location) ToFHIR() map[string]interface{} {
	result := fhir.NewResourceMap(ResourceType, l.FHIRID, l.VersionID, l.UpdatedAt)
	result["name"] = l.Name
	if l.Description != nil {
		result["description"] = *l.Description
	}
	if l.Status != nil {
		result["status"] = *l.Status
	}
	if l.City != nil || l.State != nil || l.Country != nil || l.PostalCode != nil {
		result["address"] = fhir.Address{
			City:       strVal(l.City),
			State:      strVal(l.State),
			Country:    strVal(l.Country),
			PostalCode: strVal(l.PostalCode),
		}
	}
	if ref := fhir.UUIDReference(ResourceType, l.ParentID); ref != nil {
		result["partOf"] = ref
	}
	return result
}

type locationResource struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Address     *fhir.Address   `json:"address"`
	PartOf      *fhir.Reference `json:"partOf"`
}

// FromFHIR translates a Location resource. name is required.
func FromFHIR(res map[string]interface{}) (*Location, error) {
	var r locationResource
	if err := fhir.DecodeResource(res, &r); err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.Name) == "" {
		return nil, fhir.Invalidf("Location.name is required")
	}
	l := &Location{
		Name:        strings.TrimSpace(r.Name),
		Description: optional(r.Description),
	}
	if r.Status != "" {
		if !validStatuses[r.Status] {
			return nil, fhir.Invalidf("invalid Location.status %q", r.Status)
		}
		l.Status = optional(r.Status)
	}
	if a := r.Address; a != nil {
		l.City = optional(a.City)
		l.State = optional(a.State)
		l.Country = optional(a.Country)
		l.PostalCode = optional(a.PostalCode)
	}
	parent, err := fhir.ReferenceUUID(r.PartOf, ResourceType)
	if err != nil {
		return nil, err
	}
	l.ParentID = parent
	return l, nil
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
