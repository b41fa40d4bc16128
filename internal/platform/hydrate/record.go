package hydrate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// DatePolicy decides what an unparseable date becomes.
type DatePolicy string

const (
	// DateNow substitutes the current time.
	DateNow DatePolicy = "now"
	// DateZero substitutes the zero time.
	DateZero DatePolicy = "zero"
	// DateError fails hydration with InvalidFormat.
	DateError DatePolicy = "error"
)

// ParseDatePolicy maps a configuration string to a DatePolicy. Empty means DateNow.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(s) {
	case "", DateNow:
		return DateNow, nil
	case DateZero:
		return DateZero, nil
	case DateError:
		return DateError, nil
	default:
		return "", fmt.Errorf("unknown date fallback policy %q", s)
	}
}

// Observer is notified of every fallback taken while hydrating.
type Observer interface {
	ColumnFallback(entity, attribute, column string)
	DateFallback(entity, attribute string, policy DatePolicy)
}

// Options configures a Hydrator.
type Options struct {
	DatePolicy DatePolicy
	Logger     zerolog.Logger
	Observer   Observer
	Now        func() time.Time
	// Active is the table's active-status policy. Nil reports every record
	// as active.
	Active *activestatus.Policy
}

// Hydrator builds Records for one entity mapping.
type Hydrator struct {
	mapping  *Mapping
	policy   DatePolicy
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
	active   *activestatus.Policy
}

// New returns a Hydrator for m.
func New(m *Mapping, opts Options) *Hydrator {
	h := &Hydrator{
		mapping:  m,
		policy:   opts.DatePolicy,
		logger:   opts.Logger,
		observer: opts.Observer,
		now:      opts.Now,
		active:   opts.Active,
	}
	if h.policy == "" {
		h.policy = DateNow
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

// Mapping returns the mapping the hydrator reads with.
func (h *Hydrator) Mapping() *Mapping { return h.mapping }

// Record wraps row for attribute access.
func (h *Hydrator) Record(row db.Row) *Record {
	return &Record{h: h, row: row}
}

// Record reads attributes from one row. Accessors return the zero value after
// the first error; the error is reported by Err.
type Record struct {
	h        *Hydrator
	row      db.Row
	err      error
	warnings []string
}

// Row returns the underlying row.
func (r *Record) Row() db.Row { return r.row }

// IsActive reports whether the row is live under the table's active-status
// policy. It reads only the policy column, never an attribute.
func (r *Record) IsActive() bool {
	if r.h.active == nil {
		return true
	}
	return r.h.active.IsActive(r.row)
}

// Err returns the first error encountered by an accessor.
func (r *Record) Err() error { return r.err }

// Warnings returns the fallbacks applied while reading dates.
func (r *Record) Warnings() []string {
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

func (r *Record) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// lookup resolves an attribute: the first candidate column holding a non-null
// value wins; otherwise the default applies.
func (r *Record) lookup(name string) (any, bool) {
	if r.err != nil {
		return nil, false
	}
	m := r.h.mapping
	a, ok := m.Attribute(name)
	if !ok {
		r.fail(storeerr.UnknownField(m.Entity(), "attribute", name))
		return nil, false
	}

	present := false
	for i, col := range a.Columns {
		v, ok := r.row.Get(col)
		if !ok {
			continue
		}
		present = true
		if v == nil {
			continue
		}
		if i > 0 {
			r.h.logger.Debug().
				Str("entity", m.Entity()).
				Str("attribute", name).
				Str("column", col).
				Msg("hydrated from legacy column")
			if r.h.observer != nil {
				r.h.observer.ColumnFallback(m.Entity(), name, col)
			}
		}
		return v, true
	}

	if !present && a.Required {
		r.fail(storeerr.MissingRequiredColumn(m.Entity(), name, a.Columns))
		return nil, false
	}
	return a.Default, true
}

// Raw returns the resolved value without conversion.
func (r *Record) Raw(name string) any {
	v, _ := r.lookup(name)
	return v
}

// String returns the attribute as a string; null becomes "".
func (r *Record) String(name string) string {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return ""
	}
	s, err := toString(v)
	if err != nil {
		r.fail(r.convErr(name, err))
	}
	return s
}

// StringPtr returns nil for null.
func (r *Record) StringPtr(name string) *string {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return nil
	}
	s, err := toString(v)
	if err != nil {
		r.fail(r.convErr(name, err))
		return nil
	}
	return &s
}

// Int returns the attribute as an int64; null becomes 0.
func (r *Record) Int(name string) int64 {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return 0
	}
	n, err := toInt(v)
	if err != nil {
		r.fail(r.convErr(name, err))
	}
	return n
}

// Bool accepts booleans, numbers and the strings 0/1/t/f/true/false/y/n/yes/no.
func (r *Record) Bool(name string) bool {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return false
	}
	b, err := toBool(v)
	if err != nil {
		r.fail(r.convErr(name, err))
	}
	return b
}

// Time returns the attribute as a time; null becomes the zero time. An
// unparseable value is handled by the hydrator's DatePolicy.
func (r *Record) Time(name string) time.Time {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return time.Time{}
	}
	t, err := toTime(v)
	if err == nil {
		return t
	}
	return r.dateFallback(name, v, err)
}

// TimePtr returns nil for null.
func (r *Record) TimePtr(name string) *time.Time {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return nil
	}
	t, err := toTime(v)
	if err != nil {
		t = r.dateFallback(name, v, err)
		if r.err != nil {
			return nil
		}
	}
	return &t
}

func (r *Record) dateFallback(name string, raw any, cause error) time.Time {
	h := r.h
	entity := h.mapping.Entity()
	if h.observer != nil {
		h.observer.DateFallback(entity, name, h.policy)
	}
	h.logger.Warn().
		Str("entity", entity).
		Str("attribute", name).
		Str("policy", string(h.policy)).
		Err(cause).
		Msg("unparseable date in row")

	if h.policy == DateError {
		r.fail(storeerr.InvalidFormat("date", "%s.%s: %v", entity, name, cause))
		return time.Time{}
	}
	r.warnings = append(r.warnings, fmt.Sprintf("%s: unparseable date %q replaced by %s", name, fmt.Sprint(raw), h.policy))
	if h.policy == DateZero {
		return time.Time{}
	}
	return h.now()
}

// UUID accepts uuid.UUID, 16-byte arrays and slices, and canonical strings.
func (r *Record) UUID(name string) uuid.UUID {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return uuid.Nil
	}
	u, err := toUUID(v)
	if err != nil {
		r.fail(r.convErr(name, err))
	}
	return u
}

// JSON decodes a JSON column into dst. Empty and non-JSON values leave dst
// untouched and report false; they are not errors.
func (r *Record) JSON(name string, dst any) bool {
	v, ok := r.lookup(name)
	if !ok || v == nil {
		return false
	}
	if err := decodeJSON(v, dst); err != nil {
		r.h.logger.Debug().
			Str("entity", r.h.mapping.Entity()).
			Str("attribute", name).
			Err(err).
			Msg("ignoring undecodable JSON column")
		return false
	}
	return true
}

func (r *Record) convErr(name string, err error) error {
	return fmt.Errorf("%s.%s: %w", r.h.mapping.Entity(), name, err)
}
