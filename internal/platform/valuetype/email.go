// Package valuetype holds immutable identifier and PHI value types. Every
// constructor validates its input and never returns a usable invalid value.
package valuetype

import (
	"database/sql/driver"
	"regexp"
	"strings"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

const (
	maxEmailLength  = 254
	maxLocalLength  = 64
	maxDomainLength = 253
)

var emailPattern = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_{|}~-]+(\.[a-z0-9!#$%&'*+/=?^_{|}~-]+)*@([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// Email is a normalized (trimmed, lowercased) e-mail address.
type Email struct {
	value string
	at    int
}

// NewEmail validates and normalizes raw.
func NewEmail(raw string) (Email, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return Email{}, storeerr.InvalidFormat("email", "empty")
	}
	if len(v) > maxEmailLength {
		return Email{}, storeerr.InvalidFormat("email", "longer than %d characters", maxEmailLength)
	}

	at := strings.LastIndexByte(v, '@')
	if at <= 0 || at == len(v)-1 {
		return Email{}, storeerr.InvalidFormat("email", "missing local part or domain")
	}
	if at > maxLocalLength {
		return Email{}, storeerr.InvalidFormat("email", "local part longer than %d characters", maxLocalLength)
	}
	if len(v)-at-1 > maxDomainLength {
		return Email{}, storeerr.InvalidFormat("email", "domain longer than %d characters", maxDomainLength)
	}
	if !emailPattern.MatchString(v) {
		return Email{}, storeerr.InvalidFormat("email", "malformed address")
	}
	return Email{value: v, at: at}, nil
}

// String returns the normalized address.
func (e Email) String() string { return e.value }

// IsZero reports whether e is the zero value.
func (e Email) IsZero() bool { return e.value == "" }

// LocalPart returns the part before '@'.
func (e Email) LocalPart() string {
	if e.value == "" {
		return ""
	}
	return e.value[:e.at]
}

// Domain returns the part after '@'.
func (e Email) Domain() string {
	if e.value == "" {
		return ""
	}
	return e.value[e.at+1:]
}

// IsDomainAllowed reports whether the domain equals one of domains, ignoring case.
func (e Email) IsDomainAllowed(domains ...string) bool {
	d := e.Domain()
	for _, allowed := range domains {
		if strings.EqualFold(strings.TrimSpace(allowed), d) {
			return true
		}
	}
	return false
}

// Masked hides the local part except its first and, for longer local parts,
// last character: j***e@example.com.
func (e Email) Masked() string {
	local := e.LocalPart()
	if local == "" {
		return ""
	}
	masked := local[:1] + "***"
	if len(local) > 2 {
		masked += local[len(local)-1:]
	}
	return masked + "@" + e.Domain()
}

// Value implements driver.Valuer.
func (e Email) Value() (driver.Value, error) {
	if e.value == "" {
		return nil, nil
	}
	return e.value, nil
}
