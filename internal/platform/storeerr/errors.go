// Package storeerr defines the error taxonomy shared by the data-access engine.
// Callers match the sentinel values with errors.Is and pull details out of the
// typed errors with errors.As.
package storeerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFormat is returned when a value type cannot be constructed from input.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnknownField is returned when a criteria, order spec or write payload
	// references a field outside the entity's allowlist.
	ErrUnknownField = errors.New("unknown field")

	// ErrCryptographicIntegrity is returned when a PHI envelope fails authentication.
	ErrCryptographicIntegrity = errors.New("cryptographic integrity failure")

	// ErrMissingRequiredColumn is returned when hydration cannot find any candidate
	// column for a mandatory attribute.
	ErrMissingRequiredColumn = errors.New("missing required column")

	// ErrNotFound is returned when an update target does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable wraps connection, transport and timeout failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FormatError describes why a value failed validation.
type FormatError struct {
	Type   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrInvalidFormat }

// InvalidFormat builds a FormatError for the given value type.
func InvalidFormat(typ, reason string, args ...any) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &FormatError{Type: typ, Reason: reason}
}

// FieldError reports a field that is not allowlisted for the entity in the
// given context ("criteria", "order", "create", "update").
type FieldError struct {
	Entity  string
	Field   string
	Context string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: unknown %s field %q", e.Entity, e.Context, e.Field)
}

func (e *FieldError) Is(target error) bool { return target == ErrUnknownField }

// UnknownField builds a FieldError.
func UnknownField(entity, context, field string) error {
	return &FieldError{Entity: entity, Field: field, Context: context}
}

// ColumnError reports a mandatory attribute with none of its candidate columns
// present in the row shape.
type ColumnError struct {
	Entity     string
	Attribute  string
	Candidates []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: attribute %q has no column in row (tried %s)",
		e.Entity, e.Attribute, strings.Join(e.Candidates, ", "))
}

func (e *ColumnError) Is(target error) bool { return target == ErrMissingRequiredColumn }

// MissingRequiredColumn builds a ColumnError.
func MissingRequiredColumn(entity, attribute string, candidates []string) error {
	return &ColumnError{Entity: entity, Attribute: attribute, Candidates: candidates}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// UnavailableError wraps a storage-boundary failure. The original driver error
// stays reachable through Unwrap.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrStorageUnavailable }

// Unavailable wraps err as a StorageUnavailable failure for op.
func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// IntegrityError wraps a decryption or envelope parsing failure.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cryptographic integrity failure: %s: %v", e.Reason, e.Err)
	}
	return "cryptographic integrity failure: " + e.Reason
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrCryptographicIntegrity }

// Integrity builds an IntegrityError.
func Integrity(reason string, err error) error {
	return &IntegrityError{Reason: reason, Err: err}
}
