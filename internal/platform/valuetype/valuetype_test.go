package valuetype

import (
	"errors"
	"strings"
	"testing"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

func TestNewEmail(t *testing.T) {
	t.Run("normalizes and masks", func(t *testing.T) {
		e, err := NewEmail("  John.Doe@Example.com ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.String() != "john.doe@example.com" {
			t.Errorf("expected normalized address, got %q", e.String())
		}
		if e.Masked() != "j***e@example.com" {
			t.Errorf("unexpected mask %q", e.Masked())
		}
		if e.LocalPart() != "john.doe" || e.Domain() != "example.com" {
			t.Errorf("unexpected parts %q %q", e.LocalPart(), e.Domain())
		}
	})

	t.Run("short local part mask", func(t *testing.T) {
		e, err := NewEmail("j@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.Masked() != "j***@example.com" {
			t.Errorf("unexpected mask %q", e.Masked())
		}
	})

	t.Run("domain allowlist", func(t *testing.T) {
		e, _ := NewEmail("a.b@Clinic.org")
		if !e.IsDomainAllowed("other.org", "CLINIC.ORG") {
			t.Error("expected domain to be allowed")
		}
		if e.IsDomainAllowed("sub.clinic.org") {
			t.Error("subdomains are not implicitly allowed")
		}
	})

	invalid := map[string]string{
		"empty":         "   ",
		"no at":         "john.example.com",
		"no domain":     "john@",
		"no local":      "@example.com",
		"no tld":        "john@localhost",
		"double dot":    "john..doe@example.com",
		"long local":    strings.Repeat("a", 65) + "@example.com",
		"long total":    "a@" + strings.Repeat("b", 250) + ".com",
		"spaces inside": "jo hn@example.com",
		"trailing dot":  "john@example.com.",
		"hyphen label":  "john@-example.com",
	}
	for name, raw := range invalid {
		raw := raw
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := NewEmail(raw)
			if !errors.Is(err, storeerr.ErrInvalidFormat) {
				t.Fatalf("expected InvalidFormat for %q, got %v", raw, err)
			}
		})
	}
}

func TestNewPhone(t *testing.T) {
	cases := []struct {
		raw      string
		e164     string
		national string
		cc       string
	}{
		{"(555) 123-4567", "+15551234567", "(555) 123-4567", "1"},
		{"1-555-123-4567", "+15551234567", "(555) 123-4567", "1"},
		{"+44 20 7946 0958", "+442079460958", "442079460958", ""},
		{"555.123.4567 ext", "+15551234567", "(555) 123-4567", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			p, err := NewPhone(tc.raw, "mobile")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.E164() != tc.e164 {
				t.Errorf("E164: got %q, want %q", p.E164(), tc.e164)
			}
			if p.National() != tc.national {
				t.Errorf("National: got %q, want %q", p.National(), tc.national)
			}
			if p.CountryCode() != tc.cc {
				t.Errorf("CountryCode: got %q, want %q", p.CountryCode(), tc.cc)
			}
			if !strings.HasSuffix(p.Masked(), tc.e164[len(tc.e164)-4:]) || !strings.HasPrefix(p.Masked(), "(***) ***-") {
				t.Errorf("unexpected mask %q", p.Masked())
			}
		})
	}

	for _, raw := range []string{"", "555-1234", "1234567890123456", "abc"} {
		if _, err := NewPhone(raw, "home"); !errors.Is(err, storeerr.ErrInvalidFormat) {
			t.Errorf("expected InvalidFormat for %q, got %v", raw, err)
		}
	}
}

func TestParsePhoneType(t *testing.T) {
	cases := map[string]PhoneType{
		"mobile": PhoneMobile,
		" HOME ": PhoneHome,
		"Work":   PhoneWork,
		"fax":    PhoneFax,
		"other":  PhoneOther,
		"pager":  PhoneOther,
		"":       PhoneOther,
	}
	for in, want := range cases {
		if got := ParsePhoneType(in); got != want {
			t.Errorf("ParsePhoneType(%q) = %q, want %q", in, got, want)
		}
	}
	p, err := NewPhone("5551234567", "satellite")
	if err != nil {
		t.Fatalf("unknown phone type must not be an error: %v", err)
	}
	if p.Type() != PhoneOther {
		t.Errorf("expected other, got %q", p.Type())
	}
}

func TestUniqueID(t *testing.T) {
	id, err := NewUniqueID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if id.Version() != 4 {
		t.Errorf("expected version 4, got %d", id.Version())
	}
	if id.Variant() != "RFC4122" {
		t.Errorf("expected RFC4122 variant, got %q", id.Variant())
	}
	if id.IsNil() {
		t.Error("generated id must not be nil")
	}

	s := id.String()
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		t.Errorf("unexpected layout %q", s)
	}
	parsed, err := ParseUniqueID(s)
	if err != nil || parsed != id {
		t.Errorf("string round trip failed: %v %v", parsed, err)
	}

	fromBytes, err := UniqueIDFromBytes(id.Bytes())
	if err != nil || fromBytes != id {
		t.Errorf("binary round trip failed: %v %v", fromBytes, err)
	}

	if !NilUniqueID.IsNil() || NilUniqueID.String() != "00000000-0000-0000-0000-000000000000" {
		t.Errorf("unexpected nil sentinel %q", NilUniqueID.String())
	}

	for _, bad := range []string{
		"",
		"not-a-uuid",
		"urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"{6ba7b810-9dad-11d1-80b4-00c04fd430c8}",
		"6ba7b8109dad11d180b400c04fd430c8",
		"6ba7b810-9dad-11d1-80b4-00c04fd430zz",
	} {
		if _, err := ParseUniqueID(bad); !errors.Is(err, storeerr.ErrInvalidFormat) {
			t.Errorf("expected InvalidFormat for %q, got %v", bad, err)
		}
	}
	if _, err := UniqueIDFromBytes([]byte{1, 2, 3}); !errors.Is(err, storeerr.ErrInvalidFormat) {
		t.Errorf("expected InvalidFormat for short bytes, got %v", err)
	}
}
