package valuetype

import (
	"database/sql/driver"

	"github.com/google/uuid"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// UniqueID is a 128-bit identifier rendered in the 8-4-4-4-12 layout.
type UniqueID struct {
	u uuid.UUID
}

// NilUniqueID is the reserved all-zero identifier.
var NilUniqueID = UniqueID{}

// NewUniqueID generates a random (version 4) identifier from crypto/rand.
func NewUniqueID() (UniqueID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return UniqueID{}, err
	}
	return UniqueID{u: u}, nil
}

// MustNewUniqueID is NewUniqueID that panics if the random source fails.
func MustNewUniqueID() UniqueID {
	return UniqueID{u: uuid.New()}
}

// ParseUniqueID accepts only the canonical 36-character hyphenated form.
func ParseUniqueID(s string) (UniqueID, error) {
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return UniqueID{}, storeerr.InvalidFormat("unique id", "expected 8-4-4-4-12 hex layout")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UniqueID{}, storeerr.InvalidFormat("unique id", "%s", err.Error())
	}
	return UniqueID{u: u}, nil
}

// UniqueIDFromBytes builds an identifier from its 16-byte binary form.
func UniqueIDFromBytes(b []byte) (UniqueID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return UniqueID{}, storeerr.InvalidFormat("unique id", "expected 16 bytes, got %d", len(b))
	}
	return UniqueID{u: u}, nil
}

// UniqueIDFromUUID wraps an existing uuid.UUID.
func UniqueIDFromUUID(u uuid.UUID) UniqueID { return UniqueID{u: u} }

// Bytes returns the 16-byte binary form.
func (id UniqueID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id.u[:])
	return b
}

// UUID returns the underlying uuid.UUID.
func (id UniqueID) UUID() uuid.UUID { return id.u }

// Version returns the version nibble.
func (id UniqueID) Version() int { return int(id.u.Version()) }

// Variant returns the variant name (RFC4122, Microsoft, ...).
func (id UniqueID) Variant() string { return id.u.Variant().String() }

// IsNil reports whether id is the all-zero sentinel.
func (id UniqueID) IsNil() bool { return id.u == uuid.Nil }

// String returns the lowercase hyphenated form.
func (id UniqueID) String() string { return id.u.String() }

// Value implements driver.Valuer.
func (id UniqueID) Value() (driver.Value, error) { return id.u.String(), nil }
