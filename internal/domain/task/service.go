package task

import (
	"context"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// Service implements fhir.ResourceService for Task.
type Service struct {
	repo     Repository
	versions *fhir.VersionTracker
	tx       db.Transactor
}

// NewService creates the Task service. versions and tx may be nil.
func NewService(repo Repository, versions *fhir.VersionTracker, tx db.Transactor) *Service {
	return &Service{repo: repo, versions: versions, tx: tx}
}

func (s *Service) ResourceType() string { return ResourceType }

func (s *Service) SearchParams() map[string]fhir.SearchParamConfig { return SearchParams }

func (s *Service) Read(ctx context.Context, id string) (fhir.DomainResource, error) {
	t, err := s.repo.GetByFHIRID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Voided {
		return nil, fhir.ErrGone
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, resource map[string]interface{}) (fhir.DomainResource, error) {
	t, err := FromFHIR(resource)
	if err != nil {
		return nil, err
	}
	err = db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordCreate(ctx, ResourceType, t.FHIRID, t.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, id string, resource map[string]interface{}) (fhir.DomainResource, error) {
	t, err := FromFHIR(resource)
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
		t.ID, t.FHIRID, t.CreatedAt = existing.ID, existing.FHIRID, existing.CreatedAt
		t.VersionID = existing.VersionID + 1
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordUpdate(ctx, ResourceType, t.FHIRID, t.VersionID, t.ToFHIR())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete voids the task. Deleting an already voided task is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		t, err := s.repo.GetByFHIRID(ctx, id)
		if err != nil {
			return err
		}
		if t.Voided {
			return nil
		}
		t.VersionID++
		if err := s.repo.Void(ctx, t); err != nil {
			return err
		}
		if s.versions != nil {
			return s.versions.RecordDelete(ctx, ResourceType, t.FHIRID, t.VersionID)
		}
		return nil
	})
}

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) ([]fhir.DomainResource, int, error) {
	tasks, total, err := s.repo.Search(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fhir.DomainResource, len(tasks))
	for i, t := range tasks {
		out[i] = t
	}
	return out, total, nil
}
