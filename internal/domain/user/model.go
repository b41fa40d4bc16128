package user

import (
	"time"

	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/validation"
	"github.com/ehr/recordstore/internal/platform/valuetype"
)

// User maps to the users table.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        string     `json:"role"`
	ClinicID    *string    `json:"clinic_id,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MaskedEmail hides the local part of the address for logs.
func (u *User) MaskedEmail() string {
	e, err := valuetype.NewEmail(u.Email)
	if err != nil {
		return ""
	}
	return e.Masked()
}

// CreateInput carries the fields of a new user account.
type CreateInput struct {
	Email     string `json:"email" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Role      string `json:"role" validate:"omitempty,oneof=admin physician nurse staff"`
	ClinicID  string `json:"clinic_id" validate:"omitempty,uuid"`
	Phone     string `json:"phone"`
}

func (in CreateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	email, err := valuetype.NewEmail(in.Email)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = "staff"
	}
	d := repository.Data{
		"email":     email.String(),
		"firstName": in.FirstName,
		"lastName":  in.LastName,
		"role":      role,
	}
	if in.ClinicID != "" {
		d["clinicId"] = in.ClinicID
	}
	if in.Phone != "" {
		p, err := valuetype.NewPhone(in.Phone, "work")
		if err != nil {
			return nil, err
		}
		d["phone"] = p.E164()
	}
	return d, nil
}
