package patient

import (
	"context"

	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/internal/platform/valuetype"
	"github.com/ehr/recordstore/pkg/pagination"
)

// Filter narrows List. Empty fields do not filter.
type Filter struct {
	ClinicID        string
	Status          string
	LastName        string
	IncludeInactive bool
	SortBy          string
	SortDir         string
}

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Patient, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Patient, error)
	Delete(ctx context.Context, id string) (bool, error)
	Restore(ctx context.Context, id string) (bool, error)
	Erase(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f Filter, page pagination.Page) (*pagination.Result[*Patient], error)
	FindByRecordNumber(ctx context.Context, recordNumber string) (*Patient, error)
	FindBySSNLastFour(ctx context.Context, lastFour string, page pagination.Page) (*pagination.Result[*Patient], error)
	RevealSSN(ctx context.Context, id, reason string) (string, error)
}

type store struct {
	repo *repository.Repository[Patient]
}

// NewRepo builds the patient repository on conn. ids seals and opens SSNs.
func NewRepo(conn db.Conn, ids *valuetype.IdentityNumbers, opts repository.Options) (Repository, error) {
	repo, err := repository.New[Patient](conn, Definition(ids), mapper(ids), opts)
	if err != nil {
		return nil, err
	}
	return &store{repo: repo}, nil
}

func (s *store) Create(ctx context.Context, in CreateInput) (*Patient, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, d)
}

func (s *store) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storeerr.NotFound(Entity, id)
	}
	return p, nil
}

func (s *store) Update(ctx context.Context, id string, in UpdateInput) (*Patient, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, d)
}

func (s *store) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func (s *store) Restore(ctx context.Context, id string) (bool, error) {
	return s.repo.Restore(ctx, id)
}

func (s *store) Erase(ctx context.Context, id string) (bool, error) {
	return s.repo.HardDelete(ctx, id)
}

func (s *store) List(ctx context.Context, f Filter, page pagination.Page) (*pagination.Result[*Patient], error) {
	c := s.repo.Criteria()
	if f.ClinicID != "" {
		c.Where("clinicId", f.ClinicID)
	}
	if f.Status != "" {
		c.Where("status", f.Status)
	}
	if f.LastName != "" {
		c.Where("lastName", f.LastName)
	}
	if f.IncludeInactive {
		c.WithScope(criteria.IncludeInactive)
	}
	o := s.repo.Order()
	if f.SortBy != "" {
		o.By(f.SortBy, f.SortDir)
	}
	return s.repo.FindPage(ctx, c, o, page)
}

func (s *store) FindByRecordNumber(ctx context.Context, recordNumber string) (*Patient, error) {
	return s.repo.FindOneBy(ctx, s.repo.Criteria().Where("recordNumber", recordNumber))
}

// FindBySSNLastFour matches on the clear last-four column; no envelope is
// opened.
func (s *store) FindBySSNLastFour(ctx context.Context, lastFour string, page pagination.Page) (*pagination.Result[*Patient], error) {
	if len(lastFour) != 4 || valuetype.NormalizeIdentityNumber(lastFour) != lastFour {
		return nil, storeerr.InvalidFormat("identity number", "last four must be 4 digits")
	}
	return s.repo.FindPage(ctx, s.repo.Criteria().Where("ssnLastFour", lastFour), nil, page)
}

// RevealSSN decrypts the patient's SSN. The access is audited with reason
// before the envelope is opened.
func (s *store) RevealSSN(ctx context.Context, id, reason string) (string, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if p.SSN.IsZero() {
		return "", storeerr.InvalidFormat(Entity, "no identity number on record")
	}
	return p.SSN.Decrypt(ctx, reason)
}
