package criteria

import (
	"strings"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Direction is a sort direction keyword.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection maps desc/descending (any case) to Desc and everything else
// to Asc.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Desc
	default:
		return Asc
	}
}

// OrderTerm is one ORDER BY column.
type OrderTerm struct {
	Column    string
	Direction Direction
}

// OrderSpec is an ordered list of allowlisted physical columns. An empty spec
// means the entity's default order.
type OrderSpec struct {
	allow *Allowlist
	terms []OrderTerm
	err   error
}

// NewOrder returns an empty order for the entity described by allow.
func NewOrder(allow *Allowlist) *OrderSpec {
	return &OrderSpec{allow: allow}
}

// Add appends column in the given direction.
func (o *OrderSpec) Add(column, direction string) error {
	if !o.allow.Orderable(column) {
		return storeerr.UnknownField(o.allow.Entity(), "order", column)
	}
	o.terms = append(o.terms, OrderTerm{Column: column, Direction: ParseDirection(direction)})
	return nil
}

// By is the chainable form of Add.
func (o *OrderSpec) By(column, direction string) *OrderSpec {
	if o.err == nil {
		o.err = o.Add(column, direction)
	}
	return o
}

// Err returns the first error recorded by By.
func (o *OrderSpec) Err() error {
	if o == nil {
		return nil
	}
	return o.err
}

// Terms returns a copy of the order terms.
func (o *OrderSpec) Terms() []OrderTerm {
	if o == nil {
		return nil
	}
	out := make([]OrderTerm, len(o.terms))
	copy(out, o.terms)
	return out
}

// Allowlist returns the allowlist the order was built against.
func (o *OrderSpec) Allowlist() *Allowlist {
	if o == nil {
		return nil
	}
	return o.allow
}

// IsEmpty reports whether no column was added.
func (o *OrderSpec) IsEmpty() bool { return o == nil || len(o.terms) == 0 }

// SQL renders the terms without the ORDER BY keyword, e.g. "created_at DESC, id ASC".
func (o *OrderSpec) SQL() string {
	if o.IsEmpty() {
		return ""
	}
	parts := make([]string, len(o.terms))
	for i, t := range o.terms {
		parts[i] = t.Column + " " + string(t.Direction)
	}
	return strings.Join(parts, ", ")
}
