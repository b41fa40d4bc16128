package valuetype

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

type auditorFunc func(ctx context.Context, e phi.AccessEvent) error

func (f auditorFunc) RecordAccess(ctx context.Context, e phi.AccessEvent) error { return f(ctx, e) }

func testCipher(t *testing.T, material string) *phi.EnvelopeCipher {
	t.Helper()
	key := sha256.Sum256([]byte(material))
	c, err := phi.NewEnvelopeCipher(key[:])
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}
	return c
}

func testFactory(t *testing.T, auditor phi.Auditor) *IdentityNumbers {
	t.Helper()
	f, err := NewIdentityNumbers(testCipher(t, "identity-number-tests"), auditor, zerolog.Nop())
	if err != nil {
		t.Fatalf("create factory: %v", err)
	}
	return f
}

func TestNewIdentityNumbers_RequiresCipher(t *testing.T) {
	_, err := NewIdentityNumbers(nil, nil, zerolog.Nop())
	if !errors.Is(err, phi.ErrMissingKeyMaterial) {
		t.Fatalf("expected ErrMissingKeyMaterial, got %v", err)
	}
}

func TestIdentityNumber_RoundTrip(t *testing.T) {
	f := testFactory(t, nil)
	ctx := context.Background()

	inputs := []string{"123-45-6780", "123 45 6780", "123456780", "001-01-0001", "899-99-9998"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			n, err := f.New(in)
			if err != nil {
				t.Fatalf("New(%q): %v", in, err)
			}
			digits := NormalizeIdentityNumber(in)
			if strings.Contains(n.Envelope(), digits) {
				t.Error("envelope must not contain the plaintext")
			}

			got, err := n.Decrypt(ctx, "round-trip test")
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if got != digits {
				t.Errorf("expected %q, got %q", digits, got)
			}

			wantMask := "***-**-" + digits[5:]
			if n.Masked() != wantMask {
				t.Errorf("expected %q, got %q", wantMask, n.Masked())
			}
			if n.MaskedCompact() != "*****"+digits[5:] {
				t.Errorf("unexpected compact mask %q", n.MaskedCompact())
			}
			if strings.Count(n.Masked(), "*") != 5 {
				t.Errorf("mask must reveal exactly four digits: %q", n.Masked())
			}
		})
	}
}

func TestIdentityNumber_FreshIVPerSeal(t *testing.T) {
	f := testFactory(t, nil)
	a, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Envelope() == b.Envelope() {
		t.Error("two seals of the same value must differ")
	}
}

func TestValidateIdentityNumber(t *testing.T) {
	invalid := map[string]string{
		"short":          "12345678",
		"long":           "1234567890",
		"area 9xx":       "912345678",
		"area 000":       "000123456",
		"group 00":       "123006789",
		"serial 0000":    "123450000",
		"all same digit": "111111111",
		"woolworth":      "078051120",
		"denylisted":     "219099999",
		"sequential":     "123456789",
		"denylisted 2":   "457555462",
	}
	for name, digits := range invalid {
		t.Run(name, func(t *testing.T) {
			if err := ValidateIdentityNumber(digits); !errors.Is(err, storeerr.ErrInvalidFormat) {
				t.Errorf("expected InvalidFormat for %s, got %v", digits, err)
			}
		})
	}
	if err := ValidateIdentityNumber("123456780"); err != nil {
		t.Errorf("expected valid number, got %v", err)
	}
}

func TestIdentityNumber_StringAndJSONAreMasked(t *testing.T) {
	f := testFactory(t, nil)
	n, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s := fmt.Sprintf("%v %s", n, n); strings.Contains(s, "123456780") || strings.Contains(s, "12345") {
		t.Errorf("formatted value leaks digits: %q", s)
	}

	data, err := json.Marshal(struct {
		SSN IdentityNumber `json:"ssn"`
	}{SSN: n})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"ssn":"***-**-6780"}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Object("ssn", n).Msg("")
	if strings.Contains(buf.String(), "12345") || !strings.Contains(buf.String(), "6780") {
		t.Errorf("unexpected log output %s", buf.String())
	}
}

func TestIdentityNumber_AuditsDecrypt(t *testing.T) {
	var events []phi.AccessEvent
	f := testFactory(t, auditorFunc(func(_ context.Context, e phi.AccessEvent) error {
		events = append(events, e)
		return nil
	}))

	n, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n = n.WithSubject(Subject{Entity: "patient", RecordID: "p-1", Field: "ssn"})

	ctx := phi.WithActor(context.Background(), phi.Actor{ID: "u-9", Role: "physician"})
	if _, err := n.Decrypt(ctx, "billing"); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	e := events[0]
	if e.Entity != "patient" || e.RecordID != "p-1" || e.Field != "ssn" {
		t.Errorf("unexpected subject %+v", e)
	}
	if e.Action != phi.ActionDecrypt || e.Reason != "billing" {
		t.Errorf("unexpected action %q reason %q", e.Action, e.Reason)
	}
	if e.Actor.ID != "u-9" || e.Actor.Role != "physician" {
		t.Errorf("unexpected actor %+v", e.Actor)
	}
	if e.AccessedAt.IsZero() {
		t.Error("expected access timestamp")
	}
}

func TestIdentityNumber_AuditFailureAbortsDecrypt(t *testing.T) {
	auditErr := errors.New("audit store down")
	f := testFactory(t, auditorFunc(func(context.Context, phi.AccessEvent) error { return auditErr }))

	n, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := n.Decrypt(context.Background(), "billing")
	if !errors.Is(err, auditErr) {
		t.Fatalf("expected audit error, got %v", err)
	}
	if got != "" {
		t.Errorf("plaintext must not be returned when auditing fails, got %q", got)
	}
}

func TestIdentityNumber_IntegrityFailures(t *testing.T) {
	ctx := context.Background()
	f := testFactory(t, nil)
	n, err := f.New("123-45-6780")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewIdentityNumbers(testCipher(t, "a different key"), nil, zerolog.Nop())
		if err != nil {
			t.Fatalf("factory: %v", err)
		}
		stored, err := other.FromStorage(n.Envelope(), n.LastFour())
		if err != nil {
			t.Fatalf("FromStorage: %v", err)
		}
		if _, err := stored.Decrypt(ctx, "test"); !errors.Is(err, storeerr.ErrCryptographicIntegrity) {
			t.Errorf("expected integrity error, got %v", err)
		}
	})

	t.Run("tampered envelope", func(t *testing.T) {
		env, err := phi.DecodeEnvelope(n.Envelope())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		env.Ciphertext[0] ^= 0xff
		stored, err := f.FromStorage(env.Encode(), n.LastFour())
		if err != nil {
			t.Fatalf("FromStorage: %v", err)
		}
		if _, err := stored.Decrypt(ctx, "test"); !errors.Is(err, storeerr.ErrCryptographicIntegrity) {
			t.Errorf("expected integrity error, got %v", err)
		}
	})

	t.Run("last four mismatch", func(t *testing.T) {
		stored, err := f.FromStorage(n.Envelope(), "1111")
		if err != nil {
			t.Fatalf("FromStorage: %v", err)
		}
		if _, err := stored.Decrypt(ctx, "test"); !errors.Is(err, storeerr.ErrCryptographicIntegrity) {
			t.Errorf("expected integrity error, got %v", err)
		}
	})
}

func TestIdentityNumber_FromStorageValidation(t *testing.T) {
	f := testFactory(t, nil)
	if _, err := f.FromStorage("", "1234"); !errors.Is(err, storeerr.ErrInvalidFormat) {
		t.Errorf("expected InvalidFormat for empty envelope, got %v", err)
	}
	if _, err := f.FromStorage("abc", "12a4"); !errors.Is(err, storeerr.ErrInvalidFormat) {
		t.Errorf("expected InvalidFormat for bad last four, got %v", err)
	}
}

func TestIdentityNumber_Equal(t *testing.T) {
	ctx := context.Background()
	var compares int
	f := testFactory(t, auditorFunc(func(_ context.Context, e phi.AccessEvent) error {
		if e.Action == phi.ActionCompare {
			compares++
		}
		return nil
	}))

	a, _ := f.New("123-45-6780")
	b, _ := f.New("123456780")
	c, _ := f.New("223-45-6780")
	d, _ := f.New("123-45-6781")

	eq, err := a.Equal(ctx, b)
	if err != nil || !eq {
		t.Errorf("expected equal, got %v %v", eq, err)
	}
	if compares != 2 {
		t.Errorf("expected both sides audited, got %d", compares)
	}

	eq, err = a.Equal(ctx, c)
	if err != nil || eq {
		t.Errorf("expected not equal, got %v %v", eq, err)
	}

	compares = 0
	eq, err = a.Equal(ctx, d)
	if err != nil || eq {
		t.Errorf("expected not equal, got %v %v", eq, err)
	}
	if compares != 0 {
		t.Errorf("different last four must not decrypt, got %d accesses", compares)
	}
}
