package meeting

import (
	"context"
	"time"

	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Meeting, error)
	GetByID(ctx context.Context, id int64) (*Meeting, error)
	FindByRoom(ctx context.Context, roomName string) (*Meeting, error)
	ListForEncounter(ctx context.Context, encounterID string) ([]*Meeting, error)
	Start(ctx context.Context, id int64) (*Meeting, error)
	End(ctx context.Context, id int64) (*Meeting, error)
	Cancel(ctx context.Context, id int64) (bool, error)
}

type store struct {
	repo *repository.Repository[Meeting]
	now  func() time.Time
}

func NewRepo(conn db.Conn, opts repository.Options) (Repository, error) {
	repo, err := repository.New[Meeting](conn, Definition(), mapMeeting, opts)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &store{repo: repo, now: now}, nil
}

func (s *store) Create(ctx context.Context, in CreateInput) (*Meeting, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, d)
}

func (s *store) GetByID(ctx context.Context, id int64) (*Meeting, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, storeerr.NotFound(Entity, id)
	}
	return m, nil
}

func (s *store) FindByRoom(ctx context.Context, roomName string) (*Meeting, error) {
	return s.repo.FindOneBy(ctx, s.repo.Criteria().Where("roomName", roomName))
}

// ListForEncounter returns every meeting of the encounter in schedule order.
func (s *store) ListForEncounter(ctx context.Context, encounterID string) ([]*Meeting, error) {
	c := s.repo.Criteria().Where("encounterId", encounterID)
	return s.repo.FindAll(ctx, c, nil, pagination.Page{Limit: pagination.MaxLimit})
}

func (s *store) Start(ctx context.Context, id int64) (*Meeting, error) {
	return s.transition(ctx, id, "scheduled", repository.Data{"status": "in-progress"})
}

func (s *store) End(ctx context.Context, id int64) (*Meeting, error) {
	return s.transition(ctx, id, "in-progress", repository.Data{"status": "ended", "endedAt": s.now()})
}

// transition reads the status check and writes the new status inside one
// transaction. Concurrent transitions of the same meeting still need the
// database isolation level to serialize the read.
func (s *store) transition(ctx context.Context, id int64, from string, d repository.Data) (_ *Meeting, err error) {
	txCtx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = s.repo.Rollback(txCtx)
		}
	}()

	m, err := s.GetByID(txCtx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != from {
		return nil, storeerr.InvalidFormat(Entity, "cannot move meeting from %s to %v", m.Status, d["status"])
	}
	m, err = s.repo.Update(txCtx, id, d)
	if err != nil {
		return nil, err
	}
	if err = s.repo.Commit(txCtx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *store) Cancel(ctx context.Context, id int64) (bool, error) {
	return s.repo.Delete(ctx, id)
}
