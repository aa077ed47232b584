package fhir

import (
	"strings"
)

// SortSpec represents a single sort directive.
type SortSpec struct {
	Field      string
	Descending bool
}

// ParseSort parses the _sort query parameter value.
// Format: "-date,status" means date DESC, status ASC.
func ParseSort(sortParam string) []SortSpec {
	if sortParam == "" {
		return nil
	}

	parts := strings.Split(sortParam, ",")
	specs := make([]SortSpec, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		spec := SortSpec{Field: strings.TrimPrefix(part, "-"), Descending: strings.HasPrefix(part, "-")}
		if spec.Field != "" {
			specs = append(specs, spec)
		}
	}
	return specs
}
