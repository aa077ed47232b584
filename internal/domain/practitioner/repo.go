package practitioner

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Practitioner, error)
	Update(ctx context.Context, p *Practitioner) error
	Void(ctx context.Context, p *Practitioner) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Practitioner, int, error)
}
