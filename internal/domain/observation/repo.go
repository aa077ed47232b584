package observation

import (
	"context"
	"net/url"
	"time"

	"github.com/emr/fhir2/internal/platform/fhir"
)

// LastNRow is an observation with the start of its encounter, which
// $lastn-encounters orders encounters by.
type LastNRow struct {
	Observation    *Observation
	EncounterStart *time.Time
}

type Repository interface {
	Create(ctx context.Context, o *Observation) error
	GetByFHIRID(ctx context.Context, fhirID string) (*Observation, error)
	Update(ctx context.Context, o *Observation) error
	Void(ctx context.Context, o *Observation) error
	Search(ctx context.Context, req *fhir.SearchRequest) ([]*Observation, int, error)
	// LastNCandidates returns every observation matching filters.
	LastNCandidates(ctx context.Context, filters url.Values) ([]LastNRow, error)
}
