package location

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, l *Location) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Location, error)
	Update(ctx context.Context, l *Location) error
	Void(ctx context.Context, l *Location) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Location, int, error)
}
