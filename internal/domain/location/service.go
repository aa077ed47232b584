package location

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Location.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Location service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	l, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Voided {
		return nil, fhir.ErrGone
	}
	return l, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	l, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, l); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, l.FHIRID, l.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	l, err := FromFHIR(resource)
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
		l.ID, l.FHIRID, l.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		l.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, l); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, l.FHIRID, l.VersionID, l.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete voids the location. Deleting an already voided location is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		l, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if l.Voided {
			return nil
		}
		l.VersionID++
		if err := s.repo.Void(ctx, l); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, l.FHIRID, l.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	locations, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(locations))
	for i, l := range locations {
		out[i] = l
	}
	return out, total, nil
}
