package medication

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Medication.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Medication service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	m, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Voided {
		return nil, fhir.ErrGone
	}
	return m, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	m, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, m); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, m.FHIRID, m.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	m, err := FromFHIR(resource)
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
		m.ID, m.FHIRID, m.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		m.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, m); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, m.FHIRID, m.VersionID, m.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete voids the medication. Deleting an already voided medication is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		m, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if m.Voided {
			return nil
		}
		m.VersionID++
		if err := s.repo.Void(ctx, m); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, m.FHIRID, m.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	medications, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(medications))
	for i, m := range medications {
		out[i] = m
	}
	return out, total, nil
}
