package encounter

import (
	"time"

	"github.com/ehr/recordstore/internal/platform/repository"
	"github.com/ehr/recordstore/internal/platform/validation"
)

// Encounter maps to the encounters table.
type Encounter struct {
	ID              string    `json:"id"`
	EncounterNumber string    `json:"encounter_number"`
	PatientID       string    `json:"patient_id"`
	ClinicID        *string   `json:"clinic_id,omitempty"`
	ProviderID      *string   `json:"provider_id,omitempty"`
	EncounterDate   time.Time `json:"encounter_date"`
	Status          string    `json:"status"`
	ChiefComplaint  *string   `json:"chief_complaint,omitempty"`
	Vitals          *Vitals   `json:"vitals,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Vitals are the measurements taken during an encounter.
type Vitals struct {
	HeartRate        *int     `json:"heart_rate,omitempty" validate:"omitempty,min=20,max=300"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty" validate:"omitempty,min=4,max=80"`
	SystolicBP       *int     `json:"systolic_bp,omitempty" validate:"omitempty,min=40,max=300"`
	DiastolicBP      *int     `json:"diastolic_bp,omitempty" validate:"omitempty,min=20,max=200"`
	TemperatureC     *float64 `json:"temperature_c,omitempty" validate:"omitempty,min=25,max=45"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty" validate:"omitempty,min=50,max=100"`
	WeightKg         *float64 `json:"weight_kg,omitempty" validate:"omitempty,gt=0"`
}

// Valid encounter statuses.
var validStatuses = map[string]bool{
	"scheduled":   true,
	"checked-in":  true,
	"in-progress": true,
	"completed":   true,
	"cancelled":   true,
	"no-show":     true,
}

// CreateInput carries the caller-supplied fields of a new encounter.
type CreateInput struct {
	PatientID      string     `json:"patient_id" validate:"required,uuid"`
	ClinicID       string     `json:"clinic_id" validate:"omitempty,uuid"`
	ProviderID     string     `json:"provider_id" validate:"omitempty,uuid"`
	EncounterDate  *time.Time `json:"encounter_date"`
	Status         string     `json:"status"`
	ChiefComplaint string     `json:"chief_complaint" validate:"max=2000"`
	Vitals         *Vitals    `json:"vitals"`
}

// Data validates in and converts it to repository field values. The status
// defaults to scheduled and the encounter date to now.
func (in CreateInput) Data(now time.Time) (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = "scheduled"
	}
	if !validStatuses[status] {
		return nil, invalidStatus(status)
	}
	d := repository.Data{
		"patientId":     in.PatientID,
		"status":        status,
		"encounterDate": now,
	}
	if in.EncounterDate != nil {
		d["encounterDate"] = in.EncounterDate.UTC()
	}
	if in.ClinicID != "" {
		d["clinicId"] = in.ClinicID
	}
	if in.ProviderID != "" {
		d["providerId"] = in.ProviderID
	}
	if in.ChiefComplaint != "" {
		d["chiefComplaint"] = in.ChiefComplaint
	}
	if in.Vitals != nil {
		d["vitals"] = in.Vitals
	}
	return d, nil
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	ProviderID     *string    `json:"provider_id" validate:"omitempty,uuid"`
	EncounterDate  *time.Time `json:"encounter_date"`
	Status         *string    `json:"status"`
	ChiefComplaint *string    `json:"chief_complaint" validate:"omitempty,max=2000"`
	Vitals         *Vitals    `json:"vitals"`
}

// Data validates in and converts the set fields to repository field values.
func (in UpdateInput) Data() (repository.Data, error) {
	if err := validation.Struct(Entity, in); err != nil {
		return nil, err
	}
	d := repository.Data{}
	if in.ProviderID != nil {
		d["providerId"] = *in.ProviderID
	}
	if in.EncounterDate != nil {
		d["encounterDate"] = in.EncounterDate.UTC()
	}
	if in.Status != nil {
		if !validStatuses[*in.Status] {
			return nil, invalidStatus(*in.Status)
		}
		d["status"] = *in.Status
	}
	if in.ChiefComplaint != nil {
		d["chiefComplaint"] = *in.ChiefComplaint
	}
	if in.Vitals != nil {
		d["vitals"] = in.Vitals
	}
	return d, nil
}
