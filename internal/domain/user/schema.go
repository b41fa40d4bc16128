package user

import (
	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/repository"
)

const Entity = "user"

func Definition() repository.Definition {
	return repository.Definition{
		Entity:     Entity,
		Tables:     []string{"users"},
		IDField:    "id",
		IDStrategy: repository.GeneratedUUID,
		Fields: []repository.Field{
			{Attribute: hydrate.Attribute{Name: "id", Columns: []string{"id"}, Required: true}, Query: true},
			{Attribute: hydrate.Attribute{Name: "email", Columns: []string{"email", "email_address"}, Required: true}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "firstName", Columns: []string{"first_name"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "lastName", Columns: []string{"last_name"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "role", Columns: []string{"role", "user_role"}, Default: "staff"}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "clinicId", Columns: []string{"clinic_id"}}, Query: true, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "phone", Columns: []string{"phone"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "lastLoginAt", Columns: []string{"last_login_at", "last_login"}}, Mutable: true},
			{Attribute: hydrate.Attribute{Name: "createdAt", Columns: []string{"created_at"}}, Internal: true},
			{Attribute: hydrate.Attribute{Name: "updatedAt", Columns: []string{"updated_at"}}, Internal: true},
		},
		Active:         activestatus.New(activestatus.IsActive),
		DefaultOrder:   []criteria.OrderTerm{{Column: "last_name", Direction: criteria.Asc}, {Column: "first_name", Direction: criteria.Asc}},
		Orderable:      []string{"last_name", "first_name", "created_at", "last_login_at"},
		Required:       []string{"email", "firstName", "lastName"},
		CreatedAtField: "createdAt",
		UpdatedAtField: "updatedAt",
	}
}

func mapUser(r *hydrate.Record) (*User, error) {
	u := &User{
		ID:          r.String("id"),
		Email:       r.String("email"),
		FirstName:   r.String("firstName"),
		LastName:    r.String("lastName"),
		Role:        r.String("role"),
		ClinicID:    r.StringPtr("clinicId"),
		Phone:       r.StringPtr("phone"),
		LastLoginAt: r.TimePtr("lastLoginAt"),
		Active:      r.IsActive(),
		CreatedAt:   r.Time("createdAt"),
		UpdatedAt:   r.Time("updatedAt"),
	}
	return u, r.Err()
}
