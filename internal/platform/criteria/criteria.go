package criteria

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Scope selects rows by active status.
type Scope int

const (
	ActiveOnly Scope = iota
	IncludeInactive
	InactiveOnly
)

func (s Scope) String() string {
	switch s {
	case IncludeInactive:
		return "include_inactive"
	case InactiveOnly:
		return "inactive_only"
	default:
		return "active_only"
	}
}

// Predicate is one equality (or IS NULL) test on a physical column.
type Predicate struct {
	Field  string
	Column string
	Value  any
}

// IsNull reports whether the predicate tests for NULL.
func (p Predicate) IsNull() bool { return p.Value == nil }

// Criteria is an ordered, AND-joined list of predicates. The zero scope is
// ActiveOnly. A nil *Criteria matches every active row.
type Criteria struct {
	allow *Allowlist
	preds []Predicate
	scope Scope
	err   error
}

// New returns empty criteria for the entity described by allow.
func New(allow *Allowlist) *Criteria {
	return &Criteria{allow: allow}
}

// Add appends field = value. A nil value tests IS NULL, booleans bind as 1/0.
// The reserved field "active" takes a bool (or nil for every row) and sets
// the scope instead.
func (c *Criteria) Add(field string, value any) error {
	if field == ActiveField {
		return c.setActive(value)
	}
	column, ok := c.allow.Column(field)
	if !ok {
		return storeerr.UnknownField(c.allow.Entity(), "query", field)
	}
	v, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", c.allow.Entity(), field, err)
	}
	c.preds = append(c.preds, Predicate{Field: field, Column: column, Value: v})
	return nil
}

// Where is the chainable form of Add. The first error is kept and reported by
// Err; later calls after an error are ignored.
func (c *Criteria) Where(field string, value any) *Criteria {
	if c.err == nil {
		c.err = c.Add(field, value)
	}
	return c
}

// WithScope sets the active-status scope.
func (c *Criteria) WithScope(s Scope) *Criteria {
	c.scope = s
	return c
}

// Err returns the first error recorded by Where.
func (c *Criteria) Err() error {
	if c == nil {
		return nil
	}
	return c.err
}

// Scope returns the active-status scope.
func (c *Criteria) Scope() Scope {
	if c == nil {
		return ActiveOnly
	}
	return c.scope
}

// Predicates returns a copy of the predicates in insertion order.
func (c *Criteria) Predicates() []Predicate {
	if c == nil {
		return nil
	}
	out := make([]Predicate, len(c.preds))
	copy(out, c.preds)
	return out
}

// Allowlist returns the allowlist the criteria were built against.
func (c *Criteria) Allowlist() *Allowlist {
	if c == nil {
		return nil
	}
	return c.allow
}

// Len returns the number of predicates.
func (c *Criteria) Len() int {
	if c == nil {
		return 0
	}
	return len(c.preds)
}

func (c *Criteria) setActive(value any) error {
	switch v := value.(type) {
	case nil:
		c.scope = IncludeInactive
	case bool:
		if v {
			c.scope = ActiveOnly
		} else {
			c.scope = InactiveOnly
		}
	default:
		return storeerr.InvalidFormat("criteria", "%q expects a bool, got %T", ActiveField, value)
	}
	return nil
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// Normalize converts a filter value into the form bound as a query argument.
// It returns nil for values that must be tested with IS NULL.
func Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	case time.Time:
		return v, nil
	case uuid.UUID:
		return v.String(), nil
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return nil, storeerr.InvalidFormat("criteria value", "%s", err.Error())
		}
		return Normalize(dv)
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return Normalize(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return rv.Convert(timeType).Interface(), nil
		}
	case reflect.Array:
		if rv.Type().ConvertibleTo(uuidType) {
			return rv.Convert(uuidType).Interface().(uuid.UUID).String(), nil
		}
	}
	return nil, storeerr.InvalidFormat("criteria value", "unsupported type %T", value)
}
