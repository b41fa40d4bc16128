// Package repository is the generic data-access façade. A Definition
// declares an entity's table, fields, legacy fallbacks, allowlists,
// active-status policy and PHI fields; Repository[T] runs every operation
// from it.
package repository

import (
	"fmt"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/hydrate"
)

// IDStrategy decides who assigns primary keys.
type IDStrategy int

const (
	// GeneratedUUID ids are random UUIDs assigned before insert.
	GeneratedUUID IDStrategy = iota
	// DatabaseAssigned ids come back from INSERT ... RETURNING.
	DatabaseAssigned
)

// Field is one entity attribute plus how callers may use it.
type Field struct {
	hydrate.Attribute
	// Query allows filtering on the field through Criteria.
	Query bool
	// Mutable allows changing the field with Update.
	Mutable bool
	// Internal fields are written only by the engine (keys, timestamps,
	// record numbers, PHI side columns) and are rejected in caller Data.
	Internal bool
}

// RecordNumber configures generation of a human-readable number on create.
type RecordNumber struct {
	Field   string
	Counter string
	Prefix  string
	Width   int
}

// SealedValue is an encrypted PHI value ready for storage.
type SealedValue interface {
	Envelope() string
	LastFour() string
}

// Sealer encrypts a plaintext PHI value.
type Sealer func(plaintext string) (SealedValue, error)

// PHIField routes a field through a sealer on every write. LastFourField
// names the attribute receiving the clear last four digits.
type PHIField struct {
	Field         string
	LastFourField string
	Seal          Sealer
}

// Definition describes one entity.
type Definition struct {
	Entity string
	// Tables are candidate table names; detection picks the first that exists.
	Tables       []string
	IDField      string
	IDStrategy   IDStrategy
	Fields       []Field
	Active       activestatus.Policy
	DefaultOrder []criteria.OrderTerm
	// Orderable lists physical columns callers may sort by.
	Orderable      []string
	Required       []string
	RecordNumber   *RecordNumber
	CreatedAtField string
	UpdatedAtField string
	PHI            []PHIField
}

// Table returns the preferred table name.
func (d Definition) Table() string {
	if len(d.Tables) == 0 {
		return ""
	}
	return d.Tables[0]
}

// Field looks up a field by logical name.
func (d Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Mapping builds the hydration mapping of the definition.
func (d Definition) Mapping() (*hydrate.Mapping, error) {
	attrs := make([]hydrate.Attribute, len(d.Fields))
	for i, f := range d.Fields {
		attrs[i] = f.Attribute
	}
	return hydrate.NewMapping(d.Entity, attrs...)
}

// Validate checks internal consistency. Fields may not read an active-status
// column: active status is only ever read through the policy.
func (d Definition) Validate() error {
	if d.Entity == "" {
		return fmt.Errorf("definition: entity name required")
	}
	if len(d.Tables) == 0 {
		return fmt.Errorf("%s definition: no table", d.Entity)
	}
	for _, t := range d.Tables {
		if !criteria.ValidIdentifier(t) {
			return fmt.Errorf("%s definition: invalid table %q", d.Entity, t)
		}
	}
	if err := d.Active.Validate(); err != nil {
		return fmt.Errorf("%s definition: %w", d.Entity, err)
	}

	reserved := make(map[string]bool)
	for _, c := range activestatus.Columns() {
		reserved[c] = true
	}
	reserved[d.Active.Column] = true
	for _, f := range d.Fields {
		for _, c := range f.Columns {
			if reserved[c] {
				return fmt.Errorf("%s definition: field %q reads active-status column %q", d.Entity, f.Name, c)
			}
		}
	}

	id, ok := d.Field(d.IDField)
	if !ok {
		return fmt.Errorf("%s definition: id field %q not declared", d.Entity, d.IDField)
	}
	if id.Mutable {
		return fmt.Errorf("%s definition: id field may not be mutable", d.Entity)
	}

	refs := map[string]string{"created_at": d.CreatedAtField, "updated_at": d.UpdatedAtField}
	if d.RecordNumber != nil {
		refs["record number"] = d.RecordNumber.Field
	}
	for _, name := range d.Required {
		if _, ok := d.Field(name); !ok {
			return fmt.Errorf("%s definition: required field %q not declared", d.Entity, name)
		}
	}
	for role, name := range refs {
		if name == "" {
			continue
		}
		if _, ok := d.Field(name); !ok {
			return fmt.Errorf("%s definition: %s field %q not declared", d.Entity, role, name)
		}
	}

	for _, p := range d.PHI {
		if _, ok := d.Field(p.Field); !ok {
			return fmt.Errorf("%s definition: PHI field %q not declared", d.Entity, p.Field)
		}
		if _, ok := d.Field(p.LastFourField); !ok {
			return fmt.Errorf("%s definition: PHI side field %q not declared", d.Entity, p.LastFourField)
		}
		if p.Seal == nil {
			return fmt.Errorf("%s definition: PHI field %q has no sealer", d.Entity, p.Field)
		}
	}
	for _, c := range d.Orderable {
		if !criteria.ValidIdentifier(c) {
			return fmt.Errorf("%s definition: invalid order column %q", d.Entity, c)
		}
	}
	return nil
}

func (d Definition) phiField(name string) (PHIField, bool) {
	for _, p := range d.PHI {
		if p.Field == name {
			return p, true
		}
	}
	return PHIField{}, false
}
