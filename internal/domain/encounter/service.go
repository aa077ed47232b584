package encounter

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Encounter.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Encounter service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	e, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Voided {
		return nil, fhir.ErrGone
	}
	return e, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	e, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, e); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, e.FHIRID, e.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	e, err := FromFHIR(resource)
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
		e.ID, e.FHIRID, e.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		e.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, e.FHIRID, e.VersionID, e.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Delete voids the encounter. Deleting an already voided encounter is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		e, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if e.Voided {
			return nil
		}
		e.VersionID++
		if err := s.repo.Void(ctx, e); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, e.FHIRID, e.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	encounters, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(encounters))
	for i, e := range encounters {
		out[i] = e
	}
	return out, total, nil
}
