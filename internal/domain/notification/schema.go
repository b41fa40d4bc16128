package notification

import (
	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/repository"
)

const Entity = "notification"

// Definition describes the notifications table. Some deployments still use
// the singular table name with recipient_id, notification_type, body, read
// and data columns.
func Definition() repository.Definition {
	return repository.Definition{
		Entity:     Entity,
		Tables:     []string{"notifications", "notification"},
		IDField:    "id",
		IDStrategy: repository.GeneratedUUID,
		Fields: []repository.Field{
			{Attribute: hydrate.Attribute{Name: "id", Columns: []string{"id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "userId", Columns: []string{"user_id", "recipient_id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "type", Columns: []string{"type", "notification_type"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "title", Columns: []string{"title"}}},
			{Attribute: hydrate.Attribute{Name: "message", Columns: []string{"message", "body"}}},
			{Attribute: hydrate.Attribute{Name: "isRead", Columns: []string{"is_read", "read"}, Default: false}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "readAt", Columns: []string{"read_at"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "payload", Columns: []string{"payload", "data"}, JSON: true}},
			{Attribute: hydrate.Attribute{Name: "priority", Columns: []string{"priority"}, Default: "normal"}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "createdAt", Columns: []string{"created_at"}}, Internal: true},
			{Attribute: hydrate.Attribute{Name: "updatedAt", Columns: []string{"updated_at"}}, Internal: true},
		},
		Active:         activestatus.New(activestatus.ActiveStatus),
		DefaultOrder:   []criteria.OrderTerm{{Column: "created_at", Direction: criteria.Desc}},
		Orderable:      []string{"created_at", "priority"},
		Required:       []string{"userId", "type", "title"},
		CreatedAtField: "createdAt",
		UpdatedAtField: "updatedAt",
	}
}

func mapNotification(r *hydrate.Record) (*Notification, error) {
	n := &Notification{
		ID:        r.String("id"),
		UserID:    r.String("userId"),
		Type:      r.String("type"),
		Title:     r.String("title"),
		Message:   r.String("message"),
		IsRead:    r.Bool("isRead"),
		ReadAt:    r.TimePtr("readAt"),
		Priority:  r.String("priority"),
		Active:    r.IsActive(),
		CreatedAt: r.Time("createdAt"),
		UpdatedAt: r.Time("updatedAt"),
	}
	r.JSON("payload", &n.Payload)
	return n, r.Err()
}
