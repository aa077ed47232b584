package patient

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

// Repository stores patients. GetByFHIRID returns voided rows too and
// fhir.ErrNotFound when no row exists.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Void(ctx context.Context, p *Patient) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Patient, int, error)
}
