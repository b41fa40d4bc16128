package meeting

import (
	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/repository"
)

const Entity = "meeting"

func Definition() repository.Definition {
	return repository.Definition{
		Entity:     Entity,
		Tables:     []string{"video_meetings"},
		IDField:    "id",
		IDStrategy: repository.DatabaseAssigned,
		Fields: []repository.Field{
			{Attribute: hydrate.Attribute{Name: "id", Columns: []string{"id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "encounterId", Columns: []string{"encounter_id"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "patientId", Columns: []string{"patient_id"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "hostUserId", Columns: []string{"host_user_id", "provider_id"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "roomName", Columns: []string{"room_name", "room_id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "status", Columns: []string{"status"}, Default: "scheduled"}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "scheduledAt", Columns: []string{"scheduled_at", "scheduled_time", "start_time"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "endedAt", Columns: []string{"ended_at"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "metadata", Columns: []string{"metadata"}, JSON: true}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "createdAt", Columns: []string{"created_at"}}, Internal: true},
			{Attribute: hydrate.Attribute{Name: "updatedAt", Columns: []string{"updated_at"}}, Internal: true},
		},
		Active:         activestatus.New(activestatus.DeletedAt),
		DefaultOrder:   []criteria.OrderTerm{{Column: "scheduled_at", Direction: criteria.Asc}},
		Orderable:      []string{"scheduled_at", "created_at"},
		Required:       []string{"patientId", "hostUserId", "roomName", "scheduledAt"},
		CreatedAtField: "createdAt",
		UpdatedAtField: "updatedAt",
	}
}

func mapMeeting(r *hydrate.Record) (*Meeting, error) {
	m := &Meeting{
		ID:          r.Int("id"),
		EncounterID: r.StringPtr("encounterId"),
		PatientID:   r.String("patientId"),
		HostUserID:  r.String("hostUserId"),
		RoomName:    r.String("roomName"),
		Status:      r.String("status"),
		ScheduledAt: r.Time("scheduledAt"),
		EndedAt:     r.TimePtr("endedAt"),
		Active:      r.IsActive(),
		CreatedAt:   r.Time("createdAt"),
		UpdatedAt:   r.Time("updatedAt"),
	}
	r.JSON("metadata", &m.Metadata)
	return m, r.Err()
}
