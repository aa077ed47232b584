package fhir

import "strings"

// PreferReturn is the return directive of the Prefer header.
type PreferReturn string

const (
	ReturnMinimal          PreferReturn = "minimal"
	ReturnRepresentation   PreferReturn = "representation"
	ReturnOperationOutcome PreferReturn = "OperationOutcome"
)

// ParsePreferReturn extracts return=... from a Prefer header. Directives may
// be separated by commas or semicolons. The default is representation.
func ParsePreferReturn(prefer string) PreferReturn {
	for _, part := range strings.FieldsFunc(prefer, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "return=") {
			continue
		}
		switch v := PreferReturn(strings.Trim(strings.TrimPrefix(part, "return="), `"`)); v {
		case ReturnMinimal, ReturnRepresentation, ReturnOperationOutcome:
			return v
		}
	}
	return ReturnRepresentation
}
