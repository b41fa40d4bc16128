// Package criteria is the typed filter and ordering model callers use to ask a
// repository for records. Every field and column is checked against the
// entity's allowlist when it is added, so nothing unvetted ever reaches SQL.
package criteria

import (
	"fmt"
	"regexp"
	"sort"
)

// ActiveField is the reserved logical field that overrides the active-status
// scope of a query instead of filtering a column.
const ActiveField = "active"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s may be emitted as an SQL identifier.
func ValidIdentifier(s string) bool { return identifierPattern.MatchString(s) }

// Allowlist declares which logical fields an entity can be filtered on and
// which physical columns it can be ordered by.
type Allowlist struct {
	entity    string
	queryable map[string]string
	orderable map[string]bool
}

// NewAllowlist validates every name and returns an immutable allowlist.
// queryable maps logical field names to physical columns.
func NewAllowlist(entity string, queryable map[string]string, orderable []string) (*Allowlist, error) {
	a := &Allowlist{
		entity:    entity,
		queryable: make(map[string]string, len(queryable)),
		orderable: make(map[string]bool, len(orderable)),
	}
	for field, column := range queryable {
		if field == ActiveField {
			return nil, fmt.Errorf("%s allowlist: %q is reserved", entity, ActiveField)
		}
		if !ValidIdentifier(field) || !ValidIdentifier(column) {
			return nil, fmt.Errorf("%s allowlist: invalid identifier %q -> %q", entity, field, column)
		}
		a.queryable[field] = column
	}
	for _, column := range orderable {
		if !ValidIdentifier(column) {
			return nil, fmt.Errorf("%s allowlist: invalid order column %q", entity, column)
		}
		a.orderable[column] = true
	}
	return a, nil
}

// MustAllowlist is NewAllowlist for package-level definitions.
func MustAllowlist(entity string, queryable map[string]string, orderable []string) *Allowlist {
	a, err := NewAllowlist(entity, queryable, orderable)
	if err != nil {
		panic(err)
	}
	return a
}

// Entity returns the entity name used in error messages.
func (a *Allowlist) Entity() string { return a.entity }

// Column resolves a logical field to its physical column.
func (a *Allowlist) Column(field string) (string, bool) {
	c, ok := a.queryable[field]
	return c, ok
}

// Orderable reports whether column may appear in ORDER BY.
func (a *Allowlist) Orderable(column string) bool { return a.orderable[column] }

// Fields returns the queryable logical fields, sorted.
func (a *Allowlist) Fields() []string {
	out := make([]string, 0, len(a.queryable))
	for f := range a.queryable {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// OrderColumns returns the orderable columns, sorted.
func (a *Allowlist) OrderColumns() []string {
	out := make([]string, 0, len(a.orderable))
	for c := range a.orderable {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
