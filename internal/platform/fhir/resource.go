package fhir

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Meta is the FHIR resource metadata element.
type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
}

// NewMeta builds the meta element for a stored resource version.
func NewMeta(versionID int, lastUpdated time.Time) Meta {
	return Meta{VersionID: fmt.Sprintf("%d", versionID), LastUpdated: lastUpdated.UTC()}
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstCoding returns the first coding of the concept, or an empty Coding.
func (cc CodeableConcept) FirstCoding() Coding {
	if len(cc.Coding) == 0 {
		return Coding{}
	}
	return cc.Coding[0]
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
	Period *Period          `json:"period,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Type       string   `json:"type,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// ParseReference splits "Type/id" (optionally an absolute URL or a versioned
// reference "Type/id/_history/n") into its type and id. A bare id yields an
// empty type.
func ParseReference(ref string) (resourceType, id string) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	parts := strings.Split(ref, "/")
	if len(parts) == 1 {
		return "", parts[0]
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// NewResourceMap starts the JSON representation of a stored resource with
// resourceType, id and meta.
func NewResourceMap(resourceType, id string, versionID int, lastUpdated time.Time) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": resourceType,
		"id":           id,
		"meta":         NewMeta(versionID, lastUpdated),
	}
}

// DecodeResource converts a decoded FHIR JSON object into v. Type errors
// are reported as ErrInvalid.
func DecodeResource(resource map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return Invalidf("resource is not valid JSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Invalidf("malformed resource: %v", err)
	}
	return nil
}

// ReferenceTo returns the id of ref when it points to resourceType. Bare
// ids are accepted.
func ReferenceTo(ref *Reference, resourceType string) (string, error) {
	if ref == nil || ref.Reference == "" {
		return "", nil
	}
	rt, id := ParseReference(ref.Reference)
	if rt == "" {
		rt = ref.Type
	}
	if rt != "" && rt != resourceType {
		return "", Invalidf("reference %q must point to a %s", ref.Reference, resourceType)
	}
	if id == "" {
		return "", Invalidf("reference %q has no id", ref.Reference)
	}
	return id, nil
}

// ReferenceUUID resolves ref to the row id of a resourceType. Server
// assigned ids are UUIDs, so anything else cannot exist.
func ReferenceUUID(ref *Reference, resourceType string) (*uuid.UUID, error) {
	id, err := ReferenceTo(ref, resourceType)
	if err != nil || id == "" {
		return nil, err
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, Invalidf("%s/%s does not exist", resourceType, id)
	}
	return &u, nil
}

// UUIDReference renders a row id as a reference, or nil.
func UUIDReference(resourceType string, id *uuid.UUID) *Reference {
	if id == nil {
		return nil
	}
	return &Reference{Reference: FormatReference(resourceType, id.String())}
}

// FormatDate renders a FHIR date (no time component).
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseOptionalDateTime parses s unless it is empty.
func ParseOptionalDateTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseDateTime(s)
	if err != nil {
		return nil, Invalidf("invalid %s %q", field, s)
	}
	t = t.UTC()
	return &t, nil
}
