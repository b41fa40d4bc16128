package notification

import (
	"context"
	"time"

	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Notification, error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListForUser(ctx context.Context, userID string, page pagination.Page) (*pagination.Result[*Notification], error)
	ListUnread(ctx context.Context, userID string, page pagination.Page) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) (*Notification, error)
	Dismiss(ctx context.Context, id string) (bool, error)
}

type store struct {
	repo *repository.Repository[Notification]
	now  func() time.Time
}

func NewRepo(conn db.Conn, opts repository.Options) (Repository, error) {
	repo, err := repository.New[Notification](conn, Definition(), mapNotification, opts)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &store{repo: repo, now: now}, nil
}

func (s *store) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	d, err := in.Data()
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, d)
}

func (s *store) GetByID(ctx context.Context, id string) (*Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, storeerr.NotFound(Entity, id)
	}
	return n, nil
}

func (s *store) ListForUser(ctx context.Context, userID string, page pagination.Page) (*pagination.Result[*Notification], error) {
	return s.repo.FindPage(ctx, s.repo.Criteria().Where("userId", userID), nil, page)
}

// ListUnread returns unread notifications, newest first.
func (s *store) ListUnread(ctx context.Context, userID string, page pagination.Page) ([]*Notification, error) {
	c := s.repo.Criteria().Where("userId", userID).Where("isRead", false)
	return s.repo.FindAll(ctx, c, nil, page)
}

func (s *store) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.repo.Count(ctx, s.repo.Criteria().Where("userId", userID).Where("isRead", false))
}

// MarkRead is idempotent: an already-read notification only has its
// updated_at touched.
func (s *store) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return s.repo.Update(ctx, id, repository.Data{})
	}
	return s.repo.Update(ctx, id, repository.Data{"isRead": true, "readAt": s.now()})
}

func (s *store) Dismiss(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}
