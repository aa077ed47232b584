package condition

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Condition.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Condition service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	c, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Voided {
		return nil, fhir.ErrGone
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	c, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, c.FHIRID, c.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	c, err := FromFHIR(resource)
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
		c.ID, c.FHIRID, c.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		c.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, c.FHIRID, c.VersionID, c.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete voids the condition. Deleting an already voided condition is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		c, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if c.Voided {
			return nil
		}
		c.VersionID++
		if err := s.repo.Void(ctx, c); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, c.FHIRID, c.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	conditions, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(conditions))
	for i, c := range conditions {
		out[i] = c
	}
	return out, total, nil
}
