package encounter

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Encounter, error)
	Update(ctx context.Context, e *Encounter) error
	Void(ctx context.Context, e *Encounter) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Encounter, int, error)
}
