package user

import (
	"context"
	"time"

	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/internal/platform/valuetype"
	"github.com/ehr/recordstore/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByClinic(ctx context.Context, clinicID, role string, page pagination.Page) (*pagination.Result[*User], error)
	RecordLogin(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) (bool, error)
	Reactivate(ctx context.Context, id string) (bool, error)
}

type store struct {
	repo *repository.Repository[User]
	now  func() time.Time
}

func NewRepo(conn db.Conn, opts repository.Options) (Repository, error) {
	repo, err := repository.New[User](conn, Definition(), mapUser, opts)
	if err != nil {
		return nil, err
	}
	s := &store{repo: repo, now: opts.Now}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

func (s *store) Create(ctx context.Context, in CreateInput) (*User, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, d)
}

func (s *store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, storeerr.NotFound(Entity, id)
	}
	return u, nil
}

// FindByEmail normalizes email before matching. Deactivated accounts are
// found too so callers can tell a disabled login from an unknown one.
func (s *store) FindByEmail(ctx context.Context, email string) (*User, error) {
	e, err := valuetype.NewEmail(email)
	if err != nil {
		return nil, err
	}
	c := s.repo.Criteria().Where("email", e.String()).WithScope(criteria.IncludeInactive)
	return s.repo.FindOneBy(ctx, c)
}

func (s *store) ListByClinic(ctx context.Context, clinicID, role string, page pagination.Page) (*pagination.Result[*User], error) {
	c := s.repo.Criteria().Where("clinicId", clinicID)
	if role != "" {
		c.Where("role", role)
	}
	return s.repo.FindPage(ctx, c, nil, page)
}

func (s *store) RecordLogin(ctx context.Context, id string) error {
	_, err := s.repo.Update(ctx, id, repository.Data{"lastLoginAt": s.now()})
	return err
}

func (s *store) Deactivate(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func (s *store) Reactivate(ctx context.Context, id string) (bool, error) {
	return s.repo.Restore(ctx, id)
}
