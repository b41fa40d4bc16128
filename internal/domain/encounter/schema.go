package encounter

import (
	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

const Entity = "encounter"

// Definition describes the encounters table.
func Definition() repository.Definition {
	return repository.Definition{
		Entity:     Entity,
		Tables:     []string{"encounters"},
		IDField:    "id",
		IDStrategy: repository.GeneratedUUID,
		Fields: []repository.Field{
			{Attribute: hydrate.Attribute{Name: "id", Columns: []string{"id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "encounterNumber", Columns: []string{"encounter_number"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "patientId", Columns: []string{"patient_id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "clinicId", Columns: []string{"clinic_id"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "providerId", Columns: []string{"provider_id", "physician_id"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "encounterDate", Columns: []string{"encounter_date", "visit_date", "date_of_service"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "status", Columns: []string{"status"}, Default: "scheduled"}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "chiefComplaint", Columns: []string{"chief_complaint", "reason"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "vitals", Columns: []string{"vitals", "vitals_json"}, JSON: true}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "createdAt", Columns: []string{"created_at"}}, Internal: true},
			{Attribute: hydrate.Attribute{Name: "updatedAt", Columns: []string{"updated_at"}}, Internal: true},
		},
		Active:       activestatus.New(activestatus.IsActive),
		DefaultOrder: []criteria.OrderTerm{{Column: "encounter_date", Direction: criteria.Desc}},
		Orderable:    []string{"encounter_date", "created_at", "status"},
		Required:     []string{"patientId"},
		RecordNumber: &repository.RecordNumber{
			Field:   "encounterNumber",
			Counter: "encounter_number",
			Prefix:  "ENC-",
			Width:   8,
		},
		CreatedAtField: "createdAt",
		UpdatedAtField: "updatedAt",
	}
}

func mapEncounter(r *hydrate.Record) (*Encounter, error) {
	e := &Encounter{
		ID:              r.String("id"),
		EncounterNumber: r.String("encounterNumber"),
		PatientID:       r.String("patientId"),
		ClinicID:        r.StringPtr("clinicId"),
		ProviderID:      r.StringPtr("providerId"),
		EncounterDate:   r.Time("encounterDate"),
		Status:          r.String("status"),
		ChiefComplaint:  r.StringPtr("chiefComplaint"),
		Active:          r.IsActive(),
		CreatedAt:       r.Time("createdAt"),
		UpdatedAt:       r.Time("updatedAt"),
	}
	var v Vitals
	if r.JSON("vitals", &v) {
		e.Vitals = &v
	}
	return e, r.Err()
}

func invalidStatus(s string) error {
	return storeerr.InvalidFormat(Entity, "invalid status: %s", s)
}
