package condition

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, c *Condition) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Condition, error)
	Update(ctx context.Context, c *Condition) error
	Void(ctx context.Context, c *Condition) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Condition, int, error)
}
