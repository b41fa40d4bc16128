package meeting

import (
	"time"

	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/validation"
	"github.com/ehr/recordstore/internal/platform/valuetype"
)

// Meeting maps to the video_meetings table. Its id is a database-assigned
// bigint.
type Meeting struct {
	ID          int64          `json:"id"`
	EncounterID *string        `json:"encounter_id,omitempty"`
	PatientID   string         `json:"patient_id"`
	HostUserID  string         `json:"host_user_id"`
	RoomName    string         `json:"room_name"`
	Status      string         `json:"status"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Ended reports whether the meeting has finished.
func (m *Meeting) Ended() bool { return m.Status == "ended" }

// CreateInput carries the fields of a new meeting.
type CreateInput struct {
	EncounterID string         `json:"encounter_id" validate:"omitempty,uuid"`
	PatientID   string         `json:"patient_id" validate:"required,uuid"`
	HostUserID  string         `json:"host_user_id" validate:"required,uuid"`
	RoomName    string         `json:"room_name" validate:"omitempty,max=128"`
	ScheduledAt time.Time      `json:"scheduled_at" validate:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// Data validates in and converts it to repository field values. A missing
// room name is generated from a random unique id.
func (in CreateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	room := in.RoomName
	if room == "" {
		id, err := valuetype.NewUniqueID()
		if err != nil {
			return nil, err
		}
		room = "room-" + id.String()
	}
	d := repository.Data{
		"patientId":   in.PatientID,
		"hostUserId":  in.HostUserID,
		"roomName":    room,
		"status":      "scheduled",
		"scheduledAt": in.ScheduledAt.UTC(),
	}
	if in.EncounterID != "" {
		d["encounterId"] = in.EncounterID
	}
	if in.Metadata != nil {
		d["metadata"] = in.Metadata
	}
	return d, nil
}
