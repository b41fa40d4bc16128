package notification

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/pkg/pagination"
)

var t0 = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

const userID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"

func q(s string) string { return regexp.QuoteMeta(s) }

func newTestRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo, err := NewRepo(db.NewSQLConn(sqlDB), repository.Options{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return t0 },
	})
	require.NoError(t, err)
	return repo, mock
}

var columns = []string{"id", "user_id", "type", "title", "message", "is_read", "read_at", "payload", "priority", "created_at", "updated_at", "active_status"}

func addRow(rows *sqlmock.Rows, id string, read int64, readAt any) *sqlmock.Rows {
	return rows.AddRow(id, userID, "result", "Lab result ready", "Your CBC is available", read, readAt, `{"lab_id":"L-1"}`, "high", t0, t0, int64(1))
}

func TestCreate(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(q("INSERT INTO notifications (active_status, created_at, id, is_read, message, payload, priority, title, type, updated_at, user_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)")).
		WithArgs(1, t0, sqlmock.AnyArg(), 0, "Your CBC is available", `{"lab_id":"L-1"}`, "high", "Lab result ready", "result", t0, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT * FROM notifications WHERE id = $1 LIMIT 1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(addRow(sqlmock.NewRows(columns), "n-1", 0, nil))

	n, err := repo.Create(context.Background(), CreateInput{
		UserID:   userID,
		Type:     "result",
		Title:    "Lab result ready",
		Message:  "Your CBC is available",
		Payload:  map[string]any{"lab_id": "L-1"},
		Priority: "high",
	})
	require.NoError(t, err)
	assert.False(t, n.IsRead)
	assert.Equal(t, "L-1", n.Payload["lab_id"])
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = repo.Create(context.Background(), CreateInput{UserID: userID, Type: "spam", Title: "x"})
	assert.ErrorIs(t, err, storeerr.ErrInvalidFormat)
}

func TestListUnreadAndCount(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(q("SELECT * FROM notifications WHERE user_id = $1 AND is_read = $2 AND active_status = $3 ORDER BY created_at DESC LIMIT $4 OFFSET $5")).
		WithArgs(userID, 0, 1, 50, 0).
		WillReturnRows(addRow(sqlmock.NewRows(columns), "n-1", 0, nil))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2 AND active_status = $3")).
		WithArgs(userID, 0, 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	items, err := repo.ListUnread(context.Background(), userID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "high", items[0].Priority)

	n, err := repo.CountUnread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead(t *testing.T) {
	repo, mock := newTestRepo(t)

	byID := q("SELECT * FROM notifications WHERE id = $1 AND active_status = $2 LIMIT 1")
	mock.ExpectQuery(byID).WithArgs("n-1", 1).WillReturnRows(addRow(sqlmock.NewRows(columns), "n-1", 0, nil))
	mock.ExpectQuery(byID).WithArgs("n-1", 1).WillReturnRows(addRow(sqlmock.NewRows(columns), "n-1", 0, nil))
	mock.ExpectExec(q("UPDATE notifications SET is_read = $1, read_at = $2, updated_at = $3 WHERE id = $4 AND active_status = $5")).
		WithArgs(1, t0, t0, "n-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT * FROM notifications WHERE id = $1 LIMIT 1")).
		WithArgs("n-1").
		WillReturnRows(addRow(sqlmock.NewRows(columns), "n-1", 1, t0))

	n, err := repo.MarkRead(context.Background(), "n-1")
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, t0, *n.ReadAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDismiss(t *testing.T) {
	repo, mock := newTestRepo(t)
	mock.ExpectExec(q("UPDATE notifications SET active_status = $1, updated_at = $2 WHERE id = $3 AND active_status = $4")).
		WithArgs(0, t0, "n-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Dismiss(context.Background(), "n-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLegacyTable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	conn := db.NewSQLConn(sqlDB)

	mock.ExpectQuery("information_schema.columns").
		WithArgs("notifications").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}))
	legacy := sqlmock.NewRows([]string{"column_name"})
	for _, c := range []string{"id", "recipient_id", "notification_type", "title", "body", "read", "data", "created_at", "updated_at", "active_status"} {
		legacy.AddRow(c)
	}
	mock.ExpectQuery("information_schema.columns").WithArgs("notification").WillReturnRows(legacy)

	schema, err := repository.Detect(context.Background(), conn, Definition())
	require.NoError(t, err)
	assert.Equal(t, "notification", schema.Table)
	assert.Equal(t, activestatus.ActiveStatus, schema.Active.Kind)

	repo, err := NewRepo(conn, repository.Options{Logger: zerolog.Nop(), Schema: schema})
	require.NoError(t, err)

	mock.ExpectQuery(q("SELECT * FROM notification WHERE recipient_id = $1 AND read = $2 AND active_status = $3 ORDER BY created_at DESC LIMIT $4 OFFSET $5")).
		WithArgs(userID, 0, 1, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "notification_type", "title", "body", "read", "data", "created_at", "updated_at", "active_status"}).
			AddRow("n-7", userID, "reminder", "Visit tomorrow", "See you at 9", false, `{"visit":"v-1"}`, t0, t0, int64(1)))

	items, err := repo.ListUnread(context.Background(), userID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	n := items[0]
	assert.Equal(t, "reminder", n.Type)
	assert.Equal(t, "See you at 9", n.Message)
	assert.Equal(t, "v-1", n.Payload["visit"])
	assert.Equal(t, "normal", n.Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}
