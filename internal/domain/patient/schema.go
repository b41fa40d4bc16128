package patient

import (
	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/valuetype"
)

// Entity is the entity name used in errors, logs and metrics.
const Entity = "patient"

// Definition describes the patients table. Older deployments store names in
// legal_* or abbreviated columns, the record number as mrn, and the SSN
// envelope as ssn_enc.
func Definition(ids *valuetype.IdentityNumbers) repository.Definition {
	return repository.Definition{
		Entity:     Entity,
		Tables:     []string{"patients"},
		IDField:    "id",
		IDStrategy: repository.GeneratedUUID,
		Fields: []repository.Field{
			{Attribute: hydrate.Attribute{Name: "id", Columns: []string{"id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "recordNumber", Columns: []string{"record_number", "mrn", "medical_record_number"}}, Query: true},
			{Attribute: hydrate.Attribute{Name: "firstName", Columns: []string{"first_name", "legal_first_name", "fname"}, Required: true}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "lastName", Columns: []string{"last_name", "legal_last_name", "lname"}, Required: true}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "dateOfBirth", Columns: []string{"date_of_birth", "dob", "birth_date"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "email", Columns: []string{"email"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "phone", Columns: []string{"phone", "phone_number"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "phoneType", Columns: []string{"phone_type"}, Default: string(valuetype.PhoneOther)}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "ssn", Columns: []string{"ssn_encrypted", "ssn_enc"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "ssnLastFour", Columns: []string{"ssn_last_four"}}, Query: true, Internal: true},
			{Attribute: hydrate.Attribute{Name: "clinicId", Columns: []string{"clinic_id"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "status", Columns: []string{"status"}, Default: "active"}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "preferences", Columns: []string{"preferences"}, JSON: true}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "createdAt", Columns: []string{"created_at"}}, Internal: true},
			{Attribute: hydrate.Attribute{Name: "updatedAt", Columns: []string{"updated_at"}}, Internal: true},
		},
		Active:       activestatus.New(activestatus.DeletedAt),
		DefaultOrder: []criteria.OrderTerm{{Column: "created_at", Direction: criteria.Desc}},
		Orderable:    []string{"created_at", "updated_at", "last_name", "first_name", "date_of_birth", "record_number"},
		Required:     []string{"firstName", "lastName"},
		RecordNumber: &repository.RecordNumber{
			Field:   "recordNumber",
			Counter: "patient_record_number",
			Prefix:  "PT-",
			Width:   6,
		},
		CreatedAtField: "createdAt",
		UpdatedAtField: "updatedAt",
		PHI: []repository.PHIField{{
			Field:         "ssn",
			LastFourField: "ssnLastFour",
			Seal: func(plaintext string) (repository.SealedValue, error) {
				n, err := ids.New(plaintext)
				if err != nil {
					return nil, err
				}
				return n, nil
			},
		}},
	}
}

func mapper(ids *valuetype.IdentityNumbers) repository.Mapper[Patient] {
	return func(r *hydrate.Record) (*Patient, error) {
		p := &Patient{
			ID:           r.String("id"),
			RecordNumber: r.String("recordNumber"),
			FirstName:    r.String("firstName"),
			LastName:     r.String("lastName"),
			DateOfBirth:  r.TimePtr("dateOfBirth"),
			Email:        r.StringPtr("email"),
			Phone:        r.StringPtr("phone"),
			PhoneType:    r.String("phoneType"),
			ClinicID:     r.StringPtr("clinicId"),
			Status:       r.String("status"),
			Active:       r.IsActive(),
			CreatedAt:    r.Time("createdAt"),
			UpdatedAt:    r.Time("updatedAt"),
		}
		r.JSON("preferences", &p.Preferences)

		if env := r.String("ssn"); env != "" {
			n, err := ids.FromStorage(env, r.String("ssnLastFour"))
			if err != nil {
				return nil, err
			}
			p.SSN = n.WithSubject(valuetype.Subject{Entity: Entity, RecordID: p.ID, Field: "ssn"})
		}
		return p, r.Err()
	}
}
