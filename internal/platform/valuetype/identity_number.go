package valuetype

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Numbers that are structurally valid but publicly known to be fake.
var identityDenylist = map[string]bool{
	"078051120": true,
	"219099999": true,
	"123456789": true,
	"457555462": true,
}

// IdentityNumbers constructs IdentityNumber values. It owns the cipher and the
// access auditor so that every number it creates seals and audits the same way.
type IdentityNumbers struct {
	cipher  phi.Cipher
	auditor phi.Auditor
	logger  zerolog.Logger
	now     func() time.Time
}

// NewIdentityNumbers creates a factory. A nil cipher means the process has no
// key material, which is fatal for any code path handling identity numbers.
// A nil auditor falls back to logging access events through logger.
func NewIdentityNumbers(c phi.Cipher, auditor phi.Auditor, logger zerolog.Logger) (*IdentityNumbers, error) {
	if c == nil {
		return nil, phi.ErrMissingKeyMaterial
	}
	if auditor == nil {
		auditor = phi.NewLogAuditor(logger)
	}
	return &IdentityNumbers{
		cipher:  c,
		auditor: auditor,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Subject ties an identity number to the record and field it belongs to, for
// access auditing.
type Subject struct {
	Entity   string
	RecordID string
	Field    string
}

// IdentityNumber is an encrypted nine-digit regulated identifier (SSN). Only
// the envelope and the last four digits are retained.
type IdentityNumber struct {
	envelope string
	lastFour string
	subject  Subject
	owner    *IdentityNumbers
}

// NormalizeIdentityNumber strips everything but digits.
func NormalizeIdentityNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateIdentityNumber checks a digits-only number against the format rules.
func ValidateIdentityNumber(digits string) error {
	if len(digits) != 9 {
		return storeerr.InvalidFormat("identity number", "expected 9 digits, got %d", len(digits))
	}
	if digits[0] == '9' {
		return storeerr.InvalidFormat("identity number", "area may not start with 9")
	}
	if digits[:3] == "000" {
		return storeerr.InvalidFormat("identity number", "area may not be 000")
	}
	if digits[3:5] == "00" {
		return storeerr.InvalidFormat("identity number", "group may not be 00")
	}
	if digits[5:] == "0000" {
		return storeerr.InvalidFormat("identity number", "serial may not be 0000")
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return storeerr.InvalidFormat("identity number", "repeated digit pattern")
	}
	if identityDenylist[digits] {
		return storeerr.InvalidFormat("identity number", "known invalid number")
	}
	return nil
}

// New validates plaintext and encrypts it immediately. The plaintext is not
// retained by the returned value.
func (f *IdentityNumbers) New(plaintext string) (IdentityNumber, error) {
	digits := NormalizeIdentityNumber(plaintext)
	if err := ValidateIdentityNumber(digits); err != nil {
		return IdentityNumber{}, err
	}
	envelope, err := f.cipher.Seal([]byte(digits))
	if err != nil {
		return IdentityNumber{}, err
	}
	return IdentityNumber{
		envelope: envelope,
		lastFour: digits[5:],
		owner:    f,
	}, nil
}

// FromStorage rebuilds a number from its persisted envelope and last-four
// column. Nothing is decrypted.
func (f *IdentityNumbers) FromStorage(envelope, lastFour string) (IdentityNumber, error) {
	if envelope == "" {
		return IdentityNumber{}, storeerr.InvalidFormat("identity number", "empty envelope")
	}
	if len(lastFour) != 4 || NormalizeIdentityNumber(lastFour) != lastFour {
		return IdentityNumber{}, storeerr.InvalidFormat("identity number", "last four must be 4 digits")
	}
	return IdentityNumber{envelope: envelope, lastFour: lastFour, owner: f}, nil
}

// WithSubject returns a copy bound to the record it was read from.
func (n IdentityNumber) WithSubject(s Subject) IdentityNumber {
	n.subject = s
	return n
}

// IsZero reports whether n holds no number.
func (n IdentityNumber) IsZero() bool { return n.envelope == "" }

// Envelope returns the stored ciphertext blob.
func (n IdentityNumber) Envelope() string { return n.envelope }

// LastFour returns the cleartext last four digits.
func (n IdentityNumber) LastFour() string { return n.lastFour }

// Masked renders ***-**-1234.
func (n IdentityNumber) Masked() string {
	if n.lastFour == "" {
		return ""
	}
	return "***-**-" + n.lastFour
}

// MaskedCompact renders *****1234.
func (n IdentityNumber) MaskedCompact() string {
	if n.lastFour == "" {
		return ""
	}
	return "*****" + n.lastFour
}

// String returns the masked form so formatting never leaks the number.
func (n IdentityNumber) String() string { return n.Masked() }

// MarshalJSON emits the masked form.
func (n IdentityNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Masked())
}

// MarshalZerologObject logs only the masked form.
func (n IdentityNumber) MarshalZerologObject(e *zerolog.Event) {
	e.Str("masked", n.Masked())
}

// Decrypt records an audited access and returns the plaintext digits. If the
// access cannot be audited the number is not decrypted.
func (n IdentityNumber) Decrypt(ctx context.Context, reason string) (string, error) {
	return n.open(ctx, phi.ActionDecrypt, reason)
}

// Equal compares the decrypted values of n and other in constant time. Both
// accesses are audited.
func (n IdentityNumber) Equal(ctx context.Context, other IdentityNumber) (bool, error) {
	if n.IsZero() || other.IsZero() {
		return n.IsZero() && other.IsZero(), nil
	}
	if n.lastFour != other.lastFour {
		return false, nil
	}
	a, err := n.open(ctx, phi.ActionCompare, "equality-check")
	if err != nil {
		return false, err
	}
	b, err := other.open(ctx, phi.ActionCompare, "equality-check")
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1, nil
}

func (n IdentityNumber) open(ctx context.Context, action, reason string) (string, error) {
	if n.IsZero() || n.owner == nil {
		return "", storeerr.InvalidFormat("identity number", "no value to decrypt")
	}
	f := n.owner

	actor, _ := phi.ActorFromContext(ctx)
	event := phi.AccessEvent{
		Entity:     n.subject.Entity,
		RecordID:   n.subject.RecordID,
		Field:      n.subject.Field,
		Action:     action,
		Reason:     reason,
		Actor:      actor,
		AccessedAt: f.now(),
	}
	if err := f.auditor.RecordAccess(ctx, event); err != nil {
		return "", err
	}

	plaintext, err := f.cipher.Open(n.envelope)
	if err != nil {
		f.logger.Error().
			Err(err).
			Str("event", "phi_integrity_failure").
			Str("entity", n.subject.Entity).
			Str("record_id", n.subject.RecordID).
			Str("field", n.subject.Field).
			Msg("PHI envelope failed authentication")
		return "", err
	}

	digits := string(plaintext)
	if len(digits) != 9 || digits[5:] != n.lastFour {
		f.logger.Error().
			Str("event", "phi_integrity_failure").
			Str("entity", n.subject.Entity).
			Str("record_id", n.subject.RecordID).
			Msg("PHI envelope does not match last-four column")
		return "", storeerr.Integrity("decrypted value does not match last four", nil)
	}
	return digits, nil
}
