package observation

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Observation.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Observation service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	o, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Voided {
		return nil, fhir.ErrGone
	}
	return o, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	o, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, o); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, o.FHIRID, o.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	o, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		existing, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if existing.Voided {
			return fhir.ErrGone
		}
		o.ID, o.FHIRID, o.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		o.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, o); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, o.FHIRID, o.VersionID, o.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Delete voids the observation. Deleting an already voided observation is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		o, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if o.Voided {
			return nil
		}
		o.VersionID++
		if err := s.repo.Void(ctx, o); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, o.FHIRID, o.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	observations, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(observations))
	for i, o := range observations {
		out[i] = o
	}
	return out, total, nil
}

// LastN runs $lastn, or $lastn-encounters when byEncounter is set, and
// returns the selected observations in output order.
func (s *Service) LastN(ctx context.Context, params fhir.LastNParams, byEncounter bool) ([]fhir.DomainResource, error) {
	rows, err := s.repo.LastNCandidates(ctx, params.Filters)
	if err != nil {
		return nil, err
	}
	candidates := make([]fhir.LastNCandidate, len(rows))
	for i, row := range rows {
		o := row.Observation
		c := fhir.LastNCandidate{
			Patient:        o.PatientID.String(),
			Code:           o.CodeKey(),
			Effective:      o.EffectiveDatetime,
			EncounterStart: row.EncounterStart,
			Resource:       o,
		}
		if o.EncounterID != nil {
			c.Encounter = o.EncounterID.String()
		}
		candidates[i] = c
	}

	var selected []fhir.LastNCandidate
	if byEncounter {
		selected = fhir.SelectLastNEncounters(candidates, params.Max)
	} else {
		selected = fhir.SelectLastN(candidates, params.Max)
	}
	out := make([]fhir.DomainResource, len(selected))
	for i, c := range selected {
		out[i] = c.Resource
	}
	return out, nil
}
