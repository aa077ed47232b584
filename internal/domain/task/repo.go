package task

import (
	"context"

	"github.com/emr/fhir2/internal/platform/fhir"
)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Void(ctx context.Context, t *Task) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Task, int, error)
}
