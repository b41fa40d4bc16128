package valuetype

import (
	"database/sql/driver"
	"strings"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// PhoneType classifies a phone number.
type PhoneType string

const (
	PhoneMobile PhoneType = "mobile"
	PhoneHome   PhoneType = "home"
	PhoneWork   PhoneType = "work"
	PhoneFax    PhoneType = "fax"
	PhoneOther  PhoneType = "other"
)

// ParsePhoneType maps s to a PhoneType. Unrecognized input yields PhoneOther.
func ParsePhoneType(s string) PhoneType {
	switch PhoneType(strings.ToLower(strings.TrimSpace(s))) {
	case PhoneMobile:
		return PhoneMobile
	case PhoneHome:
		return PhoneHome
	case PhoneWork:
		return PhoneWork
	case PhoneFax:
		return PhoneFax
	default:
		return PhoneOther
	}
}

// Phone is a digits-only phone number with an optionally inferred country code.
type Phone struct {
	countryCode string
	national    string
	typ         PhoneType
}

// NewPhone strips formatting from raw and validates the digit count (10-15).
// Ten-digit numbers and eleven-digit numbers starting with 1 are treated as
// North American numbers with country code 1.
func NewPhone(raw string, typ string) (Phone, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		return Phone{}, storeerr.InvalidFormat("phone", "expected 10-15 digits, got %d", len(digits))
	}

	p := Phone{typ: ParsePhoneType(typ)}
	switch {
	case len(digits) == 10:
		p.countryCode, p.national = "1", digits
	case len(digits) == 11 && digits[0] == '1':
		p.countryCode, p.national = "1", digits[1:]
	default:
		p.national = digits
	}
	return p, nil
}

// Type returns the phone type.
func (p Phone) Type() PhoneType { return p.typ }

// CountryCode returns the inferred country code, or "" when none was inferred.
func (p Phone) CountryCode() string { return p.countryCode }

// IsZero reports whether p is the zero value.
func (p Phone) IsZero() bool { return p.national == "" }

// E164 renders +<country code><national number>.
func (p Phone) E164() string {
	if p.national == "" {
		return ""
	}
	return "+" + p.countryCode + p.national
}

// National renders (555) 123-4567 for North American numbers and the bare
// digits otherwise.
func (p Phone) National() string {
	if p.countryCode == "1" && len(p.national) == 10 {
		return "(" + p.national[:3] + ") " + p.national[3:6] + "-" + p.national[6:]
	}
	return p.national
}

// LastFour returns the final four digits.
func (p Phone) LastFour() string {
	if len(p.national) < 4 {
		return ""
	}
	return p.national[len(p.national)-4:]
}

// Masked renders (***) ***-1234.
func (p Phone) Masked() string {
	if p.national == "" {
		return ""
	}
	return "(***) ***-" + p.LastFour()
}

// String returns the E.164 form.
func (p Phone) String() string { return p.E164() }

// Value implements driver.Valuer; numbers are stored in E.164 form.
func (p Phone) Value() (driver.Value, error) {
	if p.national == "" {
		return nil, nil
	}
	return p.E164(), nil
}
