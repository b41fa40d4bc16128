package patient

import (
	"time"

	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/validation"
	"github.com/ehr/recordstore/internal/platform/valuetype"
)

// Patient maps to the patients table.
type Patient struct {
	ID           string                   `json:"id"`
	RecordNumber string                   `json:"record_number"`
	FirstName    string                   `json:"first_name"`
	LastName     string                   `json:"last_name"`
	DateOfBirth  *time.Time               `json:"date_of_birth,omitempty"`
	Email        *string                  `json:"email,omitempty"`
	Phone        *string                  `json:"phone,omitempty"`
	PhoneType    string                   `json:"phone_type"`
	SSN          valuetype.IdentityNumber `json:"ssn"`
	ClinicID     *string                  `json:"clinic_id,omitempty"`
	Status       string                   `json:"status"`
	Preferences  map[string]any           `json:"preferences,omitempty"`
	Active       bool                     `json:"active"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// CreateInput carries the caller-supplied fields of a new patient.
type CreateInput struct {
	FirstName   string         `json:"first_name" validate:"required,max=100"`
	LastName    string         `json:"last_name" validate:"required,max=100"`
	DateOfBirth *time.Time     `json:"date_of_birth"`
	Email       string         `json:"email" validate:"omitempty,max=254"`
	Phone       string         `json:"phone"`
	PhoneType   string         `json:"phone_type" validate:"omitempty,oneof=mobile home work fax other"`
	SSN         string         `json:"ssn"`
	ClinicID    string         `json:"clinic_id" validate:"omitempty,uuid"`
	Status      string         `json:"status" validate:"omitempty,oneof=active inactive deceased"`
	Preferences map[string]any `json:"preferences"`
}

// Data validates in and converts it to repository field values. The SSN is
// passed as plaintext; the repository seals it before it is stored.
func (in CreateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	d := repository.Data{
		"firstName": in.FirstName,
		"lastName":  in.LastName,
	}
	if in.DateOfBirth != nil {
		d["dateOfBirth"] = in.DateOfBirth.UTC()
	}
	if err := contact(d, in.Email, in.Phone, in.PhoneType); err != nil {
		return nil, err
	}
	if in.SSN != "" {
		d["ssn"] = in.SSN
	}
	if in.ClinicID != "" {
		d["clinicId"] = in.ClinicID
	}
	d["status"] = "active"
	if in.Status != "" {
		d["status"] = in.Status
	}
	if in.Preferences != nil {
		d["preferences"] = in.Preferences
	}
	return d, nil
}

// UpdateInput carries a partial update; nil fields are left unchanged. An
// empty Email, Phone or SSN clears the stored value.
type UpdateInput struct {
	FirstName   *string        `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string        `json:"last_name" validate:"omitempty,max=100"`
	DateOfBirth *time.Time     `json:"date_of_birth"`
	Email       *string        `json:"email" validate:"omitempty,max=254"`
	Phone       *string        `json:"phone"`
	PhoneType   *string        `json:"phone_type" validate:"omitempty,oneof=mobile home work fax other"`
	SSN         *string        `json:"ssn"`
	ClinicID    *string        `json:"clinic_id" validate:"omitempty,uuid"`
	Status      *string        `json:"status" validate:"omitempty,oneof=active inactive deceased"`
	Preferences map[string]any `json:"preferences"`
}

// Data validates in and converts the set fields to repository field values.
func (in UpdateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	d := repository.Data{}
	if in.FirstName != nil {
		d["firstName"] = *in.FirstName
	}
	if in.LastName != nil {
		d["lastName"] = *in.LastName
	}
	if in.DateOfBirth != nil {
		d["dateOfBirth"] = in.DateOfBirth.UTC()
	}
	var email, phone, phoneType string
	if in.Email != nil {
		email = *in.Email
	}
	if in.Phone != nil {
		phone = *in.Phone
	}
	if in.PhoneType != nil {
		phoneType = *in.PhoneType
	}
	if err := contact(d, email, phone, phoneType); err != nil {
		return nil, err
	}
	if in.Email != nil && *in.Email == "" {
		d["email"] = nil
	}
	if in.Phone != nil && *in.Phone == "" {
		d["phone"] = nil
	}
	if in.SSN != nil {
		if *in.SSN == "" {
			d["ssn"] = nil
		} else {
			d["ssn"] = *in.SSN
		}
	}
	if in.ClinicID != nil {
		d["clinicId"] = *in.ClinicID
	}
	if in.Status != nil {
		d["status"] = *in.Status
	}
	if in.Preferences != nil {
		d["preferences"] = in.Preferences
	}
	return d, nil
}

// contact normalizes e-mail and phone through their value types.
func contact(d repository.Data, email, phone, phoneType string) error {
	if email != "" {
		e, err := valuetype.NewEmail(email)
		if err != nil {
			return err
		}
		d["email"] = e.String()
	}
	if phone != "" {
		p, err := valuetype.NewPhone(phone, phoneType)
		if err != nil {
			return err
		}
		d["phone"] = p.E164()
		d["phoneType"] = string(p.Type())
	} else if phoneType != "" {
		d["phoneType"] = string(valuetype.ParsePhoneType(phoneType))
	}
	return nil
}
