package notification

import (
	"time"

	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/validation"
)

// Notification maps to the notifications table.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  string         `json:"priority"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CreateInput carries the fields of a new notification.
type CreateInput struct {
	UserID   string         `json:"user_id" validate:"required,uuid"`
	Type     string         `json:"type" validate:"required,oneof=appointment message result reminder system"`
	Title    string         `json:"title" validate:"required,max=200"`
	Message  string         `json:"message" validate:"max=4000"`
	Payload  map[string]any `json:"payload"`
	Priority string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

func (in CreateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}
	d := repository.Data{
		"userId":   in.UserID,
		"type":     in.Type,
		"title":    in.Title,
		"message":  in.Message,
		"isRead":   false,
		"priority": priority,
	}
	if in.Payload != nil {
		d["payload"] = in.Payload
	}
	return d, nil
}
