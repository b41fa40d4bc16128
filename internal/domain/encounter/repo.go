package encounter

import (
	"context"
	"time"

	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Encounter, error)
	GetByID(ctx context.Context, id string) (*Encounter, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Encounter, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListForPatient(ctx context.Context, patientID, status string, page pagination.Page) (*pagination.Result[*Encounter], error)
	CountForPatient(ctx context.Context, patientID string) (int64, error)
	// Cancel marks the encounter cancelled and deactivates it in one
	// transaction.
	Cancel(ctx context.Context, id string) (*Encounter, error)
}

type store struct {
	repo *repository.Repository[Encounter]
	now  func() time.Time
}

func NewRepo(conn db.Conn, opts repository.Options) (Repository, error) {
	repo, err := repository.New[Encounter](conn, Definition(), mapEncounter, opts)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &store{repo: repo, now: now}, nil
}

func (s *store) Create(ctx context.Context, in CreateInput) (*Encounter, error) {
	d, err := in.Data(s.now())
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, d)
}

func (s *store) GetByID(ctx context.Context, id string) (*Encounter, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, storeerr.NotFound(Entity, id)
	}
	return e, nil
}

func (s *store) Update(ctx context.Context, id string, in UpdateInput) (*Encounter, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, d)
}

func (s *store) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func (s *store) ListForPatient(ctx context.Context, patientID, status string, page pagination.Page) (*pagination.Result[*Encounter], error) {
	c := s.repo.Criteria().Where("patientId", patientID)
	if status != "" {
		c.Where("status", status)
	}
	return s.repo.FindPage(ctx, c, nil, page)
}

func (s *store) CountForPatient(ctx context.Context, patientID string) (int64, error) {
	return s.repo.Count(ctx, s.repo.Criteria().Where("patientId", patientID))
}

func (s *store) Cancel(ctx context.Context, id string) (_ *Encounter, err error) {
	txCtx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = s.repo.Rollback(txCtx)
		}
	}()

	if _, err = s.repo.Update(txCtx, id, repository.Data{"status": "cancelled"}); err != nil {
		return nil, err
	}
	if _, err = s.repo.Delete(txCtx, id); err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(txCtx, id, criteria.IncludeInactive)
	if err != nil {
		return nil, err
	}
	if err = s.repo.Commit(txCtx); err != nil {
		return nil, err
	}
	return e, nil
}
