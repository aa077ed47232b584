package medication

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Void(ctx context.Context, m *Medication) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Medication, int, error)
}
